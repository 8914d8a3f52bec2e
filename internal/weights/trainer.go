package weights

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

const historyMaxAge = 365 * 24 * time.Hour

// Trainer rebuilds the weight table from aggregated scan history. Each run is
// a full recomputation over the current aggregates, installed as a fresh
// snapshot and persisted.
type Trainer struct {
	history core.HistoryStore
	table   *Table
	store   *FileStore
	logger  *zap.Logger
	now     func() time.Time
}

func NewTrainer(history core.HistoryStore, table *Table, store *FileStore, logger *zap.Logger) *Trainer {
	return &Trainer{
		history: history,
		table:   table,
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// weightFor grows with both average score and sighting frequency, capped so a
// single noisy sender cannot dominate fusion.
func weightFor(avgScore float64, count int) float64 {
	w := math.Min(capMultiplier, 1.0+avgScore/10.0+float64(count)/50.0)
	return math.Round(w*100.0) / 100.0
}

// Recompute rebuilds sender and rule weights from history aggregates and
// swaps the result into the live table.
func (t *Trainer) Recompute(ctx context.Context) (*Snapshot, error) {
	senderStats, err := t.history.SenderStats(ctx)
	if err != nil {
		return nil, err
	}
	ruleStats, err := t.history.RuleStats(ctx)
	if err != nil {
		return nil, err
	}

	snap := EmptySnapshot()
	snap.Updated = t.now().UTC()
	for _, s := range senderStats {
		if s.Key == "" {
			continue
		}
		snap.Senders[s.Key] = weightFor(s.AvgScore, s.Count)
	}
	for _, r := range ruleStats {
		if r.Key == "" {
			continue
		}
		w := weightFor(r.AvgScore, r.Count)
		if w > snap.Rules[r.Key] {
			snap.Rules[r.Key] = w
		}
	}

	t.table.Swap(snap)
	if t.store != nil {
		if err := t.store.Save(snap); err != nil {
			t.logger.Error("Failed to persist weight snapshot", zap.Error(err))
		}
	}

	t.logger.Info("Recomputed adaptive weights",
		zap.Int("senders", len(snap.Senders)),
		zap.Int("rules", len(snap.Rules)))
	return snap, nil
}

// PruneHistory drops outcomes old enough that they should no longer steer the
// weights.
func (t *Trainer) PruneHistory(ctx context.Context) error {
	removed, err := t.history.Prune(ctx, historyMaxAge)
	if err != nil {
		return err
	}
	if removed > 0 {
		t.logger.Info("Pruned scan history", zap.Int64("removed", removed))
	}
	return nil
}
