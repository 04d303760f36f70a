package transfer

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// scheduler drives one file's chunks through the sender with
// bounded-concurrency batches, adapting the batch size from measured
// throughput.
type scheduler struct {
	sender         ChunkSender
	session        *TransferSession
	plan           Plan
	file           *File
	logger         Logger
	aggregate      *Aggregate
	executor       CallbackExecutor
	onProgress     ProgressFunc
	onFileComplete CompleteFunc
	maxConcurrency int

	reportMu sync.Mutex
}

func (s *scheduler) run(ctx context.Context) error {
	if s.session.TotalChunks == 0 {
		// a zero-byte file is immediately successful without touching the
		// sender
		s.reportProgress()
		s.complete()
		return nil
	}

	var prevAvg float64
	next := 0

	for next < s.session.TotalChunks {
		if ctx.Err() != nil {
			return s.cancel(ctx)
		}

		batch := s.session.concurrencyLevel()
		if remaining := s.session.TotalChunks - next; batch > remaining {
			batch = remaining
		}

		speeds := make([]float64, batch)

		// plain errgroup: a failure must not cancel batch members already in
		// flight, the whole batch joins before we advance
		var g errgroup.Group
		for k := 0; k < batch; k++ {
			index := next + k
			slot := k

			g.Go(func() error {
				chunk, err := s.plan.Slice(s.file, index)
				if err != nil {
					return chunkTransferError(s.session.FileName, index, err)
				}

				start := time.Now()
				if err := s.sender.Send(ctx, &ChunkRequest{
					FileName:    s.session.FileName,
					FileSize:    s.session.TotalBytes,
					ChunkIndex:  index,
					TotalChunks: s.session.TotalChunks,
					Bytes:       chunk.Data,
				}); err != nil {
					s.session.markFailed()
					return chunkTransferError(s.session.FileName, index, err)
				}

				// a batch-mate already failed: let this send finish but
				// ignore its result
				if s.session.hasFailed() {
					return nil
				}

				speeds[slot] = s.session.recordChunk(chunk.Length, time.Since(start))
				s.reportProgress()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			if IsCancelled(err) {
				return s.cancel(ctx)
			}

			s.session.markFailed()
			s.discard(ctx)
			s.logger.Error("chunk batch failed",
				"session", s.session.ID,
				"file", s.session.FileName,
				"error", err,
			)
			return err
		}

		batchAvg := meanOf(speeds)
		s.session.adjustConcurrency(batchAvg, prevAvg, s.maxConcurrency)
		prevAvg = batchAvg

		if s.aggregate != nil {
			s.aggregate.ObserveSpeed()
		}

		next += batch
	}

	if err := s.finalize(ctx); err != nil {
		s.session.markFailed()
		return chunkTransferError(s.session.FileName, s.session.TotalChunks-1, err)
	}

	s.complete()
	return nil
}

// reportProgress snapshots the session and delivers the snapshot downstream
// as one critical section: two batch-mates that finish close together must
// not let the older snapshot overwrite the newer one in the aggregate or
// reach onProgress out of order.
func (s *scheduler) reportProgress() {
	s.reportMu.Lock()
	defer s.reportMu.Unlock()

	entry := s.session.snapshot()

	if s.aggregate != nil {
		s.aggregate.UpdateProgress(entry.FileName, entry)
	}

	s.executor.Progress(s.onProgress, entry)
}

func (s *scheduler) complete() {
	if s.aggregate != nil {
		s.aggregate.RemoveProgress(s.session.FileName)
	}

	s.executor.Complete(s.onFileComplete, s.session.FileName)
}

// finalize tells senders that assemble per-file state (multipart uploads,
// part files) that every chunk has arrived.
func (s *scheduler) finalize(ctx context.Context) error {
	finalizer, ok := s.sender.(SenderFinalizer)
	if !ok {
		return nil
	}
	return finalizer.Finalize(ctx, s.session.FileName)
}

// cancel tears down sender-side state and removes the live aggregate entry;
// uploaded bytes stay credited in the aggregate's accounting.
func (s *scheduler) cancel(ctx context.Context) error {
	if s.aggregate != nil {
		s.aggregate.RemoveProgress(s.session.FileName)
	}

	s.discard(ctx)
	return cancelledError(s.session.FileName)
}

// discard is best effort: the transfer already failed or was cancelled. The
// failed file's aggregate entry stays live so the batch view can show it.
func (s *scheduler) discard(ctx context.Context) {
	finalizer, ok := s.sender.(SenderFinalizer)
	if !ok {
		return
	}

	if err := finalizer.Discard(context.WithoutCancel(ctx), s.session.FileName); err != nil {
		s.logger.Error("discard failed",
			"session", s.session.ID,
			"file", s.session.FileName,
			"error", err,
		)
	}
}
