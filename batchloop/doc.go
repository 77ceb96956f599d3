package batchloop

/*

# Batch loop

One Controller runs one invocation: BatchCount batches of LeavesPerBatch
leaf updates each, over a single caller supplied memory region.

Before the first batch the scratch buffers are allocated from the arena. They
sit above the per batch checkpoint and so live for the whole invocation.
Every batch then runs

	Checkpoint -> BuildRecords -> Serialize -> Emit -> ZeroBuffers -> Rollback

BuildRecords asks the PathSource to write the path of leaf j into path slot j
and wraps the slot as record j. Record frames are allocated from the arena
after the checkpoint, the Rollback reclaims them. Peak arena use is therefore
the scratch buffers plus one batch of frames, however many batches run.

The first failure stops the invocation, there is no retry. Messages emitted
by earlier batches stay emitted. The Result returned with the error says how
many batches made it, and every record carries a sequence number that is
unique over the invocation, so consumers can discard a partial invocation or
deduplicate a rerun.

*/
