package transfer

// NetworkQuality is an optional hint about the link the chunks will travel
// over. It seeds initial concurrency before any throughput has been measured;
// absence degrades to the default, never errors.
type NetworkQuality string

const (
	NetworkQualityHigh   NetworkQuality = "high"
	NetworkQualityMedium NetworkQuality = "medium"
	NetworkQualityLow    NetworkQuality = "low"
)

// initialConcurrency maps the hint to a starting in-flight chunk count. A
// present but unrecognized hint starts conservatively at 1.
func initialConcurrency(quality NetworkQuality, present bool) int {
	if !present {
		return DefaultConcurrency
	}

	switch quality {
	case NetworkQualityHigh:
		return 6
	case NetworkQualityMedium:
		return 4
	case NetworkQualityLow:
		return 2
	default:
		return 1
	}
}

// clampConcurrency bounds n to [1, min(limit, MaxConcurrency)]. A limit of
// zero means no caller-supplied cap.
func clampConcurrency(n, limit int) int {
	max := MaxConcurrency
	if limit > 0 && limit < max {
		max = limit
	}

	if n > max {
		return max
	}
	if n < 1 {
		return 1
	}
	return n
}
