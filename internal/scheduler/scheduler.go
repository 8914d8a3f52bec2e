// Package scheduler runs the background loops: periodic inbox scans for
// monitored accounts, adaptive weight recomputation, and store pruning.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/memory"
	"github.com/autoguardian/autoguardian/internal/weights"
)

// Scheduler owns the background goroutines of the daemon. Start launches
// them, Stop waits for them to drain.
type Scheduler struct {
	service       *core.ScanService
	fetcher       core.InboxFetcher
	trainer       *weights.Trainer
	memory        *memory.Service
	logger        *zap.Logger
	scanFreq      time.Duration
	trainFreq     time.Duration
	pruneFreq     time.Duration
	maxConcurrent int
	fetchBatch    int

	mu    sync.Mutex
	users map[string]core.UserContext

	stopCh  chan struct{}
	stopped sync.Once
	wg      sync.WaitGroup
}

// New creates a scheduler. The fetcher may be nil, which disables the inbox
// scan loop while keeping training and pruning alive.
func New(
	service *core.ScanService,
	fetcher core.InboxFetcher,
	trainer *weights.Trainer,
	memorySvc *memory.Service,
	logger *zap.Logger,
	scanFreq time.Duration,
	trainFreq time.Duration,
	pruneFreq time.Duration,
	maxConcurrent int,
	fetchBatch int,
) *Scheduler {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if fetchBatch <= 0 {
		fetchBatch = 25
	}
	return &Scheduler{
		service:       service,
		fetcher:       fetcher,
		trainer:       trainer,
		memory:        memorySvc,
		logger:        logger,
		scanFreq:      scanFreq,
		trainFreq:     trainFreq,
		pruneFreq:     pruneFreq,
		maxConcurrent: maxConcurrent,
		fetchBatch:    fetchBatch,
		users:         make(map[string]core.UserContext),
		stopCh:        make(chan struct{}),
	}
}

// Register adds an account to the periodic scan rotation
func (s *Scheduler) Register(user core.UserContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = user
	s.logger.Info("Account registered for monitoring", zap.String("user_id", user.UserID))
}

// Unregister removes an account from the scan rotation
func (s *Scheduler) Unregister(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	s.logger.Info("Account unregistered", zap.String("user_id", userID))
}

// Start launches the background loops
func (s *Scheduler) Start() {
	if s.fetcher != nil && s.scanFreq > 0 {
		s.wg.Add(1)
		go s.loop(s.scanFreq, s.runScans)
	}
	if s.trainer != nil && s.trainFreq > 0 {
		s.wg.Add(1)
		go s.loop(s.trainFreq, s.runTraining)
	}
	if s.memory != nil && s.pruneFreq > 0 {
		s.wg.Add(1)
		go s.loop(s.pruneFreq, s.runPrune)
	}
	s.logger.Info("Scheduler started",
		zap.Duration("scan_frequency", s.scanFreq),
		zap.Duration("train_frequency", s.trainFreq),
		zap.Duration("prune_frequency", s.pruneFreq))
}

// Stop halts the loops and waits for in-flight work to finish
func (s *Scheduler) Stop() {
	s.stopped.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(freq time.Duration, job func(ctx context.Context)) {
	defer s.wg.Done()
	ticker := time.NewTicker(freq)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), freq)
			job(ctx)
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// runScans sweeps every registered account, bounded by maxConcurrent.
func (s *Scheduler) runScans(ctx context.Context) {
	s.mu.Lock()
	users := make([]core.UserContext, 0, len(s.users))
	for _, u := range s.users {
		users = append(users, u)
	}
	s.mu.Unlock()

	sem := make(chan struct{}, s.maxConcurrent)
	var wg sync.WaitGroup
	for _, user := range users {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(user core.UserContext) {
			defer wg.Done()
			defer func() { <-sem }()
			s.scanUser(ctx, user)
		}(user)
	}
	wg.Wait()
}

func (s *Scheduler) scanUser(ctx context.Context, user core.UserContext) {
	msgs, err := s.fetcher.FetchRecent(ctx, user, s.fetchBatch)
	if err != nil {
		s.logger.Warn("Inbox fetch failed",
			zap.String("user_id", user.UserID), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}

	// ScanBatch records each outcome itself
	results := s.service.ScanBatch(ctx, msgs, user)
	flagged := 0
	for _, res := range results {
		if res.Tier != core.TierSafe {
			flagged++
		}
	}
	s.logger.Info("Background scan completed",
		zap.String("user_id", user.UserID),
		zap.Int("scanned", len(msgs)),
		zap.Int("flagged", flagged))
}

func (s *Scheduler) runTraining(ctx context.Context) {
	if _, err := s.trainer.Recompute(ctx); err != nil {
		s.logger.Error("Weight recomputation failed", zap.Error(err))
	}
	if err := s.trainer.PruneHistory(ctx); err != nil {
		s.logger.Warn("History pruning failed", zap.Error(err))
	}
}

func (s *Scheduler) runPrune(ctx context.Context) {
	if err := s.memory.Prune(ctx); err != nil {
		s.logger.Warn("Memory pruning failed", zap.Error(err))
	}
}
