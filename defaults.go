package transfer

var (
	// DefaultChunkSize is the chunk size (bytes) used when callers do not
	// provide one.
	DefaultChunkSize int64 = 512 * 1024

	// DefaultConcurrency is the in-flight chunk limit used when no explicit
	// value and no network-quality hint are available.
	DefaultConcurrency = 2

	// MaxConcurrency caps in-flight chunks per file regardless of
	// configuration.
	MaxConcurrency = 8

	// SpeedSampleWindow bounds the per-file rolling window of instantaneous
	// chunk throughputs used for smoothing.
	SpeedSampleWindow = 8

	// NetworkSpeedSampleWindow bounds the aggregate's rolling buffer of
	// overall-speed observations.
	NetworkSpeedSampleWindow = 10

	// SpeedStepUpRatio and SpeedStepDownRatio drive the per-batch concurrency
	// adjustment: exceed the previous batch's average throughput by more than
	// the up ratio and concurrency steps up; fall below the down ratio and it
	// steps down. Exported so operators can tune hysteresis without forking.
	SpeedStepUpRatio   = 1.15
	SpeedStepDownRatio = 0.85

	// EtaSmoothingFactor weights the previous smoothed ETA when folding in a
	// new instantaneous observation.
	EtaSmoothingFactor = 0.85

	// ChunkSizeTargetSeconds is the transfer duration a recommended chunk
	// size aims for at the current smoothed speed.
	ChunkSizeTargetSeconds = 2.0

	// MinRecommendedChunkSize and MaxRecommendedChunkSize clamp
	// RecommendedChunkSize.
	MinRecommendedChunkSize int64 = 1 * 1024 * 1024
	MaxRecommendedChunkSize int64 = 100 * 1024 * 1024
)
