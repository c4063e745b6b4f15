package domain

// LoadLevel classifies current host pressure.
type LoadLevel string

const (
	LoadLight    LoadLevel = "LIGHT"
	LoadModerate LoadLevel = "MODERATE"
	LoadCritical LoadLevel = "CRITICAL"
)

// Ordinal maps the tier to a gauge value (0 light, 1 moderate, 2 critical).
func (l LoadLevel) Ordinal() int {
	switch l {
	case LoadCritical:
		return 2
	case LoadModerate:
		return 1
	default:
		return 0
	}
}

// ResourceSnapshot is one fresh CPU/memory sample.
type ResourceSnapshot struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ConcurrencyPolicy is the scheduler's current bound. MaxConcurrency >= 1.
type ConcurrencyPolicy struct {
	MaxConcurrency int       `json:"max_concurrency"`
	LoadLevel      LoadLevel `json:"load_level"`
}
