package crdt

import "github.com/untoldecay/bones/internal/bonerr"

// Phase is a lifecycle state, ranked Open < Doing < Done < Archived.
type Phase int

const (
	Open Phase = iota
	Doing
	Done
	Archived
)

// AllPhases lists every phase in rank order.
var AllPhases = []Phase{Open, Doing, Done, Archived}

func (p Phase) Rank() int { return int(p) }

func (p Phase) String() string {
	switch p {
	case Open:
		return "open"
	case Doing:
		return "doing"
	case Done:
		return "done"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

// ParsePhase parses the textual phase name used in item.move payloads.
func ParsePhase(s string) (Phase, error) {
	for _, p := range AllPhases {
		if p.String() == s {
			return p, nil
		}
	}
	return 0, bonerr.New(bonerr.InvalidInput, "unknown phase: "+s)
}

// EpochPhase is the lifecycle CRDT: a monotonically increasing epoch
// counter paired with an intra-epoch phase rank.
type EpochPhase struct {
	Epoch uint64
	Phase Phase
}

// NewEpochPhase returns the initial lifecycle state: epoch 0, phase Open.
func NewEpochPhase() EpochPhase {
	return EpochPhase{Epoch: 0, Phase: Open}
}

// Advance moves to target within the current epoch. Errors if
// target <= current phase (spec §4.G).
func (s EpochPhase) Advance(target Phase) (EpochPhase, error) {
	if target.Rank() <= s.Phase.Rank() {
		return s, bonerr.New(bonerr.InvalidTransition,
			"cannot advance from "+s.Phase.String()+" to "+target.String())
	}
	return EpochPhase{Epoch: s.Epoch, Phase: target}, nil
}

// Reopen increments the epoch and resets phase to Open.
func (s EpochPhase) Reopen() EpochPhase {
	return EpochPhase{Epoch: s.Epoch + 1, Phase: Open}
}

// Merge resolves two concurrent lifecycle writes: a strictly higher epoch
// wins whole; within an equal epoch, the higher-ranked phase wins. A
// concurrent close-reopen race always resolves to the reopen's higher
// epoch (spec §4.G, §8 invariant 10, scenario S2).
func MergeEpochPhase(a, b EpochPhase) EpochPhase {
	if a.Epoch != b.Epoch {
		if a.Epoch > b.Epoch {
			return a
		}
		return b
	}
	if a.Phase.Rank() >= b.Phase.Rank() {
		return a
	}
	return b
}
