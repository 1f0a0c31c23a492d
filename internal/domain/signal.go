package domain

// Signal is the output of a signal evaluation.
type Signal string

const (
	SignalLong  Signal = "LONG"
	SignalShort Signal = "SHORT"
	SignalNone  Signal = "NONE"
)

// Definite reports whether the signal names a direction.
func (s Signal) Definite() bool {
	return s == SignalLong || s == SignalShort
}

// Side converts a definite signal into a position side.
func (s Signal) Side() PositionSide {
	if s == SignalShort {
		return Short
	}
	return Long
}

// Indicators holds precomputed indicator series keyed by name (e.g. "ema_5m").
type Indicators map[string][]float64

// Last returns the newest value of a series.
func (i Indicators) Last(name string) (float64, bool) {
	series := i[name]
	if len(series) == 0 {
		return 0, false
	}
	return series[len(series)-1], true
}

// Candidate is a symbol that passed selection with the direction to open.
type Candidate struct {
	Symbol    string
	Direction PositionSide
}
