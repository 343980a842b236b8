package engine

// LoopAction is the configured response to a detected movement loop.
type LoopAction string

const (
	LoopIgnore LoopAction = "ignore"
	LoopWarn   LoopAction = "warn"
	LoopAbort  LoopAction = "abort"
)

// LoopConfig controls the loop detector. MaxConsecutive is the number of
// consecutive visits to the same movement that is still considered normal;
// the visit after that triggers Action.
type LoopConfig struct {
	MaxConsecutive int
	Action         LoopAction
}

// DefaultMaxConsecutive applies when LoopConfig.MaxConsecutive is zero.
const DefaultMaxConsecutive = 3

// LoopDetector counts consecutive executions of the same movement.
type LoopDetector struct {
	cfg   LoopConfig
	last  string
	count int
}

// NewLoopDetector creates a detector. A zero config gets the default
// threshold with the warn action.
func NewLoopDetector(cfg LoopConfig) *LoopDetector {
	if cfg.MaxConsecutive <= 0 {
		cfg.MaxConsecutive = DefaultMaxConsecutive
	}
	if cfg.Action == "" {
		cfg.Action = LoopWarn
	}
	return &LoopDetector{cfg: cfg}
}

// Observe records that the named movement is about to execute and returns the
// configured action if the consecutive threshold is exceeded, or LoopIgnore
// otherwise.
func (d *LoopDetector) Observe(movement string) LoopAction {
	if movement == d.last {
		d.count++
	} else {
		d.last = movement
		d.count = 1
	}
	if d.count > d.cfg.MaxConsecutive {
		return d.cfg.Action
	}
	return LoopIgnore
}

// Count returns the current consecutive-visit count, for log messages.
func (d *LoopDetector) Count() int {
	return d.count
}
