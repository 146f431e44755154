package opt

import "time"

// Metrics summarises one improver run.
type Metrics struct {
	Passes              int           `json:"passes"`
	Transitions         int           `json:"transitions"`
	TwoOptMoves         int           `json:"twoOptMoves"`
	RelocateMoves       int           `json:"relocateMoves"`
	ExchangeMoves       int           `json:"exchangeMoves"`
	ConstructedDistance int           `json:"constructedDistance"`
	InitialDistance     int           `json:"initialDistance"`
	FinalDistance       int           `json:"finalDistance"`
	ConstructElapsed    time.Duration `json:"constructElapsedNs"`
	Elapsed             time.Duration `json:"elapsedNs"`
	Snapshots           []Snapshot    `json:"snapshots,omitempty"`
}

// Snapshot is the running distance after a given pass.
type Snapshot struct {
	Pass     int `json:"pass"`
	Distance int `json:"distance"`
}

// MovesApplied totals the applied moves of every kind.
func (m Metrics) MovesApplied() int { return m.TwoOptMoves + m.RelocateMoves + m.ExchangeMoves }

// MovesByKind is keyed by MoveKind.String, the label used for Prometheus.
func (m Metrics) MovesByKind() map[string]int {
	return map[string]int{
		TwoOpt.String():   m.TwoOptMoves,
		Relocate.String(): m.RelocateMoves,
		Exchange.String(): m.ExchangeMoves,
	}
}

func (m *Metrics) record(k MoveKind) {
	switch k {
	case TwoOpt:
		m.TwoOptMoves++
	case Relocate:
		m.RelocateMoves++
	case Exchange:
		m.ExchangeMoves++
	}
}
