package sink

import (
	"fmt"

	azStorageBlob "github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

const (
	azblobBlobAlreadyExists   = "BlobAlreadyExists"
	azblobConditionNotMet     = "ConditionNotMet"
	azblobRequestBodyTooLarge = "RequestBodyTooLarge"
)

// AsStorageError unwraps the azure sdk storage error carried by err, if any.
func AsStorageError(err error) (azStorageBlob.StorageError, bool) {
	serr := &azStorageBlob.StorageError{}
	//nolint
	ierr, ok := err.(*azStorageBlob.InternalError)
	if ierr == nil || !ok {
		return azStorageBlob.StorageError{}, false
	}
	if !ierr.As(&serr) {
		return azStorageBlob.StorageError{}, false
	}
	return *serr, true
}

// isRejectionCode reports whether an azure storage error code means the
// service refused this particular message, as opposed to being unavailable.
func isRejectionCode(code string) bool {
	switch code {
	case azblobBlobAlreadyExists, azblobConditionNotMet, azblobRequestBodyTooLarge:
		return true
	}
	return false
}

// WrapRejected translates err to ErrMessageRejected when it is an azure
// storage error refusing the message. Any other err, nil included, is
// returned as is.
func WrapRejected(err error) error {
	if err == nil {
		return nil
	}
	serr, ok := AsStorageError(err)
	if !ok {
		return err
	}
	if !isRejectionCode(string(serr.ErrorCode)) {
		return err
	}
	return fmt.Errorf("%s: %w", err.Error(), ErrMessageRejected)
}
