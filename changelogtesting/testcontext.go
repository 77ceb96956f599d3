// Package changelogtesting provides helpers shared by the package tests.
package changelogtesting

import (
	"context"
	"testing"

	"github.com/datatrails/go-datatrails-common/azblob"
	"github.com/datatrails/go-datatrails-common/logger"
	"github.com/stretchr/testify/require"
)

type TestConfig struct {
	TestLabelPrefix string
	Container       string // can be "" defaults to TestLabelPrefix
}

type TestContext struct {
	Log    logger.Logger
	Storer *azblob.Storer
	T      *testing.T
	Cfg    TestConfig
}

// NewTestContext sets up logging only. Use ConnectAzurite for tests that
// need the blob store emulator.
func NewTestContext(t *testing.T, cfg TestConfig) *TestContext {
	logger.New("NOOP")
	return &TestContext{
		T:   t,
		Cfg: cfg,
		Log: logger.Sugar.WithServiceName(cfg.TestLabelPrefix),
	}
}

// ConnectAzurite connects to the emulator configured by the environment and
// creates the test container.
func (c *TestContext) ConnectAzurite() *azblob.Storer {
	container := c.Cfg.Container
	if container == "" {
		container = c.Cfg.TestLabelPrefix
	}

	var err error
	c.Storer, err = azblob.NewDev(azblob.NewDevConfigFromEnv(), container)
	if err != nil {
		c.T.Fatalf("failed to connect to blob store emulator: %v", err)
	}
	client := c.Storer.GetServiceClient()
	// Note: we expect a 'already exists' error here and  ignore it.
	_, _ = client.CreateContainer(context.Background(), container, nil)
	return c.Storer
}

func (c *TestContext) GetLog() logger.Logger { return c.Log }

// ListBlobs returns the names of every blob under prefix.
func (c *TestContext) ListBlobs(prefix string) []string {
	var blobs []string
	var marker azblob.ListMarker
	for {
		r, err := c.Storer.List(
			context.Background(),
			azblob.WithListPrefix(prefix), azblob.WithListMarker(marker))
		require.NoError(c.T, err)

		for _, i := range r.Items {
			blobs = append(blobs, *i.Name)
		}
		if len(r.Items) == 0 || r.Marker == nil {
			break
		}
		marker = r.Marker
	}
	return blobs
}

func (c *TestContext) DeleteBlobsByPrefix(prefix string) {
	for _, blobPath := range c.ListBlobs(prefix) {
		err := c.Storer.Delete(context.Background(), blobPath)
		require.NoError(c.T, err)
	}
}
