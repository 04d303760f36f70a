package transfer

import (
	"context"
	"errors"
	"fmt"

	gerrors "github.com/goliatone/go-errors"
)

var (
	ErrNoFile = gerrors.New("no file supplied", gerrors.CategoryBadInput).
			WithCode(400).
			WithTextCode("NO_FILE")

	ErrSenderNotConfigured = gerrors.New("chunk sender not configured", gerrors.CategoryBadInput).
				WithCode(400).
				WithTextCode("SENDER_NOT_CONFIGURED")

	ErrCancelled = gerrors.New("transfer cancelled", gerrors.CategoryOperation).
			WithCode(499).
			WithTextCode("TRANSFER_CANCELLED")

	ErrChunkTransfer = gerrors.New("chunk transfer failed", gerrors.CategoryExternal).
				WithCode(502).
				WithTextCode("CHUNK_TRANSFER_FAILED")
)

// chunkTransferError wraps a sender failure with the chunk it was carrying.
// A single chunk failure is file-fatal; there is no chunk-level retry in this
// layer, the caller re-uploads the whole file.
func chunkTransferError(fileName string, index int, cause error) error {
	return fmt.Errorf("%w: %s chunk %d: %w", ErrChunkTransfer, fileName, index, cause)
}

func cancelledError(fileName string) error {
	return fmt.Errorf("%w: %s", ErrCancelled, fileName)
}

// IsCancelled reports whether err represents an aborted transfer rather than
// a failed one. Context cancellation surfaced by a sender counts.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}
