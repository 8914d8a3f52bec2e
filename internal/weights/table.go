// Package weights maintains the adaptive sender and rule weight table learned
// from accumulated scan outcomes.
package weights

import (
	"math"
	"sync"
	"time"
)

const (
	// Multipliers never reduce a score and never exceed the cap.
	floorMultiplier = 1.0
	capMultiplier   = 2.5
)

// Snapshot is one immutable generation of the weight table.
type Snapshot struct {
	Senders map[string]float64 `json:"senders"`
	Rules   map[string]float64 `json:"rules"`
	Updated time.Time          `json:"updated"`
}

// EmptySnapshot returns a snapshot with no learned weights.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		Senders: make(map[string]float64),
		Rules:   make(map[string]float64),
	}
}

// Table serves multiplier lookups from the current snapshot. Lookups during a
// rebuild see either the old or the new generation, never a mix.
type Table struct {
	mu   sync.RWMutex
	snap *Snapshot
}

func NewTable() *Table {
	return &Table{snap: EmptySnapshot()}
}

// Swap installs a new snapshot generation.
func (t *Table) Swap(snap *Snapshot) {
	if snap == nil {
		snap = EmptySnapshot()
	}
	t.mu.Lock()
	t.snap = snap
	t.mu.Unlock()
}

// Current returns the active snapshot. Callers must not mutate it.
func (t *Table) Current() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Multiplier implements core.WeightProvider: the stronger of the sender's
// weight and the strongest matched rule's weight, clamped to [1.0, 2.5].
// Unknown senders and rules contribute the neutral 1.0.
func (t *Table) Multiplier(sender string, rules []string) float64 {
	snap := t.Current()

	m := floorMultiplier
	if w, ok := snap.Senders[sender]; ok && w > m {
		m = w
	}
	for _, r := range rules {
		if w, ok := snap.Rules[r]; ok && w > m {
			m = w
		}
	}
	return math.Min(capMultiplier, math.Max(floorMultiplier, m))
}
