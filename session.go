package transfer

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProgressEntry is a point-in-time snapshot of one file's upload progress.
type ProgressEntry struct {
	FileName         string  `json:"file_name"`
	BytesUploaded    int64   `json:"bytes_uploaded"`
	TotalBytes       int64   `json:"total_bytes"`
	PercentComplete  float64 `json:"percent_complete"`
	SpeedBytesPerSec float64 `json:"speed_bytes_per_sec"`
	// EtaSeconds is zero while no speed has been observed yet; that reads as
	// "unknown", not as an error.
	EtaSeconds float64 `json:"eta_seconds"`
}

// TransferSession tracks one file's upload from start to completion, failure
// or reset. It is mutated only by chunk-completion callbacks and the
// between-batch concurrency adjustment.
type TransferSession struct {
	ID          string
	FileName    string
	TotalBytes  int64
	TotalChunks int

	mu            sync.Mutex
	bytesUploaded int64
	failed        bool
	concurrency   int
	samples       []float64
}

func newTransferSession(fileName string, totalBytes int64, totalChunks, concurrency int) *TransferSession {
	return &TransferSession{
		ID:          uuid.NewString(),
		FileName:    fileName,
		TotalBytes:  totalBytes,
		TotalChunks: totalChunks,
		concurrency: concurrency,
		samples:     make([]float64, 0, SpeedSampleWindow),
	}
}

// recordChunk accounts a completed chunk and folds its instantaneous
// throughput into the rolling window. It returns that instantaneous
// throughput for batch averaging.
func (s *TransferSession) recordChunk(n int64, elapsed time.Duration) float64 {
	var speed float64
	if elapsed > 0 {
		speed = float64(n) / elapsed.Seconds()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bytesUploaded += n
	if s.bytesUploaded > s.TotalBytes {
		s.bytesUploaded = s.TotalBytes
	}

	if speed > 0 {
		s.samples = append(s.samples, speed)
		if len(s.samples) > SpeedSampleWindow {
			s.samples = s.samples[1:]
		}
	}

	return speed
}

func (s *TransferSession) markFailed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = true
}

func (s *TransferSession) hasFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failed
}

// concurrencyLevel returns the current number of chunks sent in parallel.
func (s *TransferSession) concurrencyLevel() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.concurrency
}

// adjustConcurrency applies the step-up/step-down heuristic once per batch,
// never per chunk, to avoid oscillation.
func (s *TransferSession) adjustConcurrency(batchAvg, prevAvg float64, limit int) {
	if prevAvg <= 0 || batchAvg <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case batchAvg > prevAvg*SpeedStepUpRatio:
		s.concurrency++
	case batchAvg < prevAvg*SpeedStepDownRatio:
		s.concurrency--
	}

	s.concurrency = clampConcurrency(s.concurrency, limit)
}

// smoothedSpeed is the arithmetic mean of up to the last SpeedSampleWindow
// instantaneous chunk throughputs.
func (s *TransferSession) smoothedSpeed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return meanOf(s.samples)
}

// snapshot derives the exported progress view.
func (s *TransferSession) snapshot() ProgressEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := ProgressEntry{
		FileName:         s.FileName,
		BytesUploaded:    s.bytesUploaded,
		TotalBytes:       s.TotalBytes,
		SpeedBytesPerSec: meanOf(s.samples),
	}

	if s.TotalBytes > 0 {
		entry.PercentComplete = 100 * float64(s.bytesUploaded) / float64(s.TotalBytes)
	} else {
		entry.PercentComplete = 100
	}

	if entry.SpeedBytesPerSec > 0 {
		entry.EtaSeconds = float64(s.TotalBytes-s.bytesUploaded) / entry.SpeedBytesPerSec
	}

	return entry
}

func meanOf(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
