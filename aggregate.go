package transfer

import (
	"math"
	"sync"
	"time"
)

// Aggregate merges per-file progress from many concurrent uploads into one
// stable view for a batch. Displayed percentage never regresses as files are
// added, removed on completion or cancellation, or as totals become known
// late. It is an explicit store passed by reference, safe for concurrent use
// by multiple schedulers.
type Aggregate struct {
	mu               sync.RWMutex
	entries          map[string]ProgressEntry
	declaredTotal    int64
	maxObservedTotal int64
	creditedBytes    int64
	speedSamples     []float64
	smoothedEta      float64
	lastLoaded       int64
	lastTick         time.Time
	lastTickSpeed    float64
	timeNowFn        func() time.Time
}

func NewAggregate() *Aggregate {
	return &Aggregate{
		entries:      make(map[string]ProgressEntry),
		speedSamples: make([]float64, 0, NetworkSpeedSampleWindow),
		timeNowFn:    func() time.Time { return time.Now() },
	}
}

// SetTotalBytesToUpload declares the batch total up front so the denominator
// is right before individual file totals are known.
func (a *Aggregate) SetTotalBytesToUpload(n int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.declaredTotal = n
}

// UpdateProgress upserts one file's entry and ratchets the observed total so
// the denominator used for display is monotonically non-decreasing within a
// batch.
func (a *Aggregate) UpdateProgress(fileName string, entry ProgressEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry.FileName = fileName
	a.entries[fileName] = entry

	if entry.TotalBytes > a.maxObservedTotal {
		a.maxObservedTotal = entry.TotalBytes
	}
	if stable := a.stableTotalLocked(); stable > a.maxObservedTotal {
		a.maxObservedTotal = stable
	}
}

// RemoveProgress deletes a file's live entry on completion or cancellation.
// Its uploaded bytes stay credited so the overall view does not dip.
func (a *Aggregate) RemoveProgress(fileName string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.entries[fileName]
	if !ok {
		return
	}

	uploaded := entry.BytesUploaded
	if entry.TotalBytes > 0 && uploaded > entry.TotalBytes {
		uploaded = entry.TotalBytes
	}
	a.creditedBytes += uploaded

	delete(a.entries, fileName)
}

// Progress returns one file's live entry.
func (a *Aggregate) Progress(fileName string) (ProgressEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	entry, ok := a.entries[fileName]
	return entry, ok
}

// Entries returns a copy of the live per-file entries.
func (a *Aggregate) Entries() map[string]ProgressEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make(map[string]ProgressEntry, len(a.entries))
	for name, entry := range a.entries {
		out[name] = entry
	}
	return out
}

// OverallProgress returns the batch percentage, rounded. When no byte totals
// are known it falls back to the mean of per-file percentages.
func (a *Aggregate) OverallProgress() int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stable := a.stableTotalLocked()
	if stable > 0 {
		loaded := a.loadedBytesLocked()
		if loaded > stable {
			loaded = stable
		}
		return int(math.Round(100 * float64(loaded) / float64(stable)))
	}

	if len(a.entries) == 0 {
		return 0
	}

	var sum float64
	for _, entry := range a.entries {
		sum += entry.PercentComplete
	}
	return int(math.Round(sum / float64(len(a.entries))))
}

// OverallSpeed sums the nonzero per-file smoothed speeds. For transfers that
// report no per-file speed it falls back to the byte delta measured between
// the last two observation ticks.
func (a *Aggregate) OverallSpeed() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if speed := a.overallSpeedLocked(); speed > 0 {
		return speed
	}
	return a.lastTickSpeed
}

// ObserveSpeed takes one overall-speed observation: it records the tick used
// by the delta fallback, pushes the observation into the rolling buffer, and
// folds the instantaneous ETA into the exponentially smoothed one. Schedulers
// call it once per batch.
func (a *Aggregate) ObserveSpeed() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.timeNow()
	loaded := a.loadedBytesLocked()

	speed := a.overallSpeedLocked()
	if speed == 0 && !a.lastTick.IsZero() {
		if dt := now.Sub(a.lastTick); dt > 0 {
			if delta := loaded - a.lastLoaded; delta > 0 {
				speed = float64(delta) / dt.Seconds()
			}
		}
	}

	a.lastLoaded = loaded
	a.lastTick = now
	a.lastTickSpeed = speed

	if speed > 0 {
		a.speedSamples = append(a.speedSamples, speed)
		if len(a.speedSamples) > NetworkSpeedSampleWindow {
			a.speedSamples = a.speedSamples[1:]
		}

		if remaining := a.stableTotalLocked() - loaded; remaining > 0 {
			instant := float64(remaining) / speed
			if a.smoothedEta == 0 {
				a.smoothedEta = instant
			} else {
				a.smoothedEta = EtaSmoothingFactor*a.smoothedEta + (1-EtaSmoothingFactor)*instant
			}
		} else {
			a.smoothedEta = 0
		}
	}

	return speed
}

// SmoothedNetworkSpeed is the mean of the rolling buffer of overall-speed
// observations; it feeds the chunk size and concurrency recommendations.
func (a *Aggregate) SmoothedNetworkSpeed() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return meanOf(a.speedSamples)
}

// SmoothedEta returns the exponentially smoothed ETA in seconds, zero while
// unknown.
func (a *Aggregate) SmoothedEta() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.smoothedEta
}

// RecommendedChunkSize targets about two seconds of transfer at the current
// smoothed speed, clamped to [1 MiB, 100 MiB].
func (a *Aggregate) RecommendedChunkSize() int64 {
	speed := a.SmoothedNetworkSpeed()

	size := int64(speed * ChunkSizeTargetSeconds)
	if size < MinRecommendedChunkSize {
		return MinRecommendedChunkSize
	}
	if size > MaxRecommendedChunkSize {
		return MaxRecommendedChunkSize
	}
	return size
}

// RecommendedConcurrency maps smoothed speed tiers to a concurrent transfer
// count between 1 and MaxConcurrency.
func (a *Aggregate) RecommendedConcurrency() int {
	speed := a.SmoothedNetworkSpeed()
	if speed == 0 {
		return DefaultConcurrency
	}

	switch {
	case speed < 128*1024:
		return 1
	case speed < 512*1024:
		return 2
	case speed < 1024*1024:
		return 3
	case speed < 4*1024*1024:
		return 4
	case speed < 8*1024*1024:
		return 5
	case speed < 16*1024*1024:
		return 6
	case speed < 32*1024*1024:
		return 7
	default:
		return MaxConcurrency
	}
}

// ResetForNewBatch clears the live entry map and tick state while preserving
// the observed total, credited bytes and smoothing history, so sequential
// batches of one logical operation show continuous metrics.
func (a *Aggregate) ResetForNewBatch() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = make(map[string]ProgressEntry)
	a.lastLoaded = 0
	a.lastTick = time.Time{}
	a.lastTickSpeed = 0
}

// ClearProgress resets everything, history included, for starting an
// unrelated operation.
func (a *Aggregate) ClearProgress() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.entries = make(map[string]ProgressEntry)
	a.declaredTotal = 0
	a.maxObservedTotal = 0
	a.creditedBytes = 0
	a.speedSamples = a.speedSamples[:0]
	a.smoothedEta = 0
	a.lastLoaded = 0
	a.lastTick = time.Time{}
	a.lastTickSpeed = 0
}

func (a *Aggregate) stableTotalLocked() int64 {
	var sum int64
	for _, entry := range a.entries {
		sum += entry.TotalBytes
	}
	sum += a.creditedBytes

	stable := a.declaredTotal
	if sum > stable {
		stable = sum
	}
	if a.maxObservedTotal > stable {
		stable = a.maxObservedTotal
	}
	return stable
}

func (a *Aggregate) loadedBytesLocked() int64 {
	loaded := a.creditedBytes
	for _, entry := range a.entries {
		uploaded := entry.BytesUploaded
		if entry.TotalBytes > 0 && uploaded > entry.TotalBytes {
			uploaded = entry.TotalBytes
		}
		loaded += uploaded
	}
	return loaded
}

func (a *Aggregate) overallSpeedLocked() float64 {
	var sum float64
	for _, entry := range a.entries {
		if entry.SpeedBytesPerSec > 0 {
			sum += entry.SpeedBytesPerSec
		}
	}
	return sum
}

// timeNow returns the injectable clock function to simplify testing.
func (a *Aggregate) timeNow() time.Time {
	if a.timeNowFn != nil {
		return a.timeNowFn()
	}
	return time.Now()
}
