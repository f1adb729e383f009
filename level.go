package flume

// Level is a record severity. Levels are totally ordered: debug < info
// < warning < success < error. Success outranks warning so that
// success records survive filters tuned to surface notable events.
type Level int64

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelSuccess
	LevelError
)

var levelLabels = map[Level]string{
	LevelDebug:   "DEBUG",
	LevelInfo:    "INFO",
	LevelWarning: "WARN",
	LevelSuccess: "SUCCESS",
	LevelError:   "ERROR",
}

// String returns the canonical upper-case label.
func (l Level) String() string {
	if label, ok := levelLabels[l]; ok {
		return label
	}
	return "UNKNOWN"
}

// Rank returns the position of the level in the severity order.
func (l Level) Rank() int64 {
	return int64(l)
}

// AtLeast reports whether l ranks at or above min.
func (l Level) AtLeast(min Level) bool {
	return l.Rank() >= min.Rank()
}

// ParseLevel maps a case-insensitive level name to its Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "debug", "DEBUG", "Debug":
		return LevelDebug, nil
	case "info", "INFO", "Info":
		return LevelInfo, nil
	case "warning", "WARNING", "Warning", "warn", "WARN", "Warn":
		return LevelWarning, nil
	case "success", "SUCCESS", "Success":
		return LevelSuccess, nil
	case "error", "ERROR", "Error":
		return LevelError, nil
	default:
		return LevelInfo, fmtErrorf("invalid log level: '%s'", s)
	}
}

// LevelSet is an explicit allow-set of levels, independent of the
// severity order. The zero value is empty.
type LevelSet uint8

// NewLevelSet builds a set from the given levels.
func NewLevelSet(levels ...Level) LevelSet {
	var s LevelSet
	for _, l := range levels {
		if l >= LevelDebug && l <= LevelError {
			s |= 1 << uint(l)
		}
	}
	return s
}

// Contains reports set membership.
func (s LevelSet) Contains(l Level) bool {
	if l < LevelDebug || l > LevelError {
		return false
	}
	return s&(1<<uint(l)) != 0
}

// Empty reports whether the set holds no levels.
func (s LevelSet) Empty() bool {
	return s == 0
}
