package di

import (
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/adapters/attachment"
	"github.com/autoguardian/autoguardian/internal/adapters/filter"
	"github.com/autoguardian/autoguardian/internal/adapters/osint"
	"github.com/autoguardian/autoguardian/internal/adapters/similarity"
	"github.com/autoguardian/autoguardian/internal/anomaly"
	"github.com/autoguardian/autoguardian/internal/behavior"
	"github.com/autoguardian/autoguardian/internal/config"
	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/factory"
	"github.com/autoguardian/autoguardian/internal/logging"
	"github.com/autoguardian/autoguardian/internal/memory"
	"github.com/autoguardian/autoguardian/internal/scheduler"
	"github.com/autoguardian/autoguardian/internal/trust"
	"github.com/autoguardian/autoguardian/internal/utils"
	"github.com/autoguardian/autoguardian/internal/weights"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewClassifierFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewTrustFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}

	// Register persistence backends
	if err := container.Provide(func(f *factory.StoreFactory) (memory.Store, error) {
		return f.CreateMemoryStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (core.HistoryStore, error) {
		return f.CreateHistoryStore()
	}); err != nil {
		return nil, err
	}

	// Register the adaptive weight table, loaded from disk at startup
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*weights.Table, *weights.FileStore, error) {
		store := weights.NewFileStore(cfg.GetString("weights.file_path"))
		table := weights.NewTable()
		snap, err := store.Load()
		if err != nil {
			return nil, nil, err
		}
		table.Swap(snap)
		logger.Info("Adaptive weights loaded",
			zap.Int("senders", len(snap.Senders)),
			zap.Int("rules", len(snap.Rules)))
		return table, store, nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(history core.HistoryStore, table *weights.Table, store *weights.FileStore, logger *zap.Logger) *weights.Trainer {
		return weights.NewTrainer(history, table, store, logger)
	}); err != nil {
		return nil, err
	}

	// Register memory, behavior, and trust services
	if err := container.Provide(func(store memory.Store, table *weights.Table, logger *zap.Logger) *memory.Service {
		return memory.NewService(store, table, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*behavior.Service, error) {
		return behavior.NewService(cfg.GetString("behavior.sqlite_path"), logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.TrustFactory) (*trust.Checker, error) {
		return f.CreateChecker()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(checker *trust.Checker, history core.HistoryStore, logger *zap.Logger) *trust.Policy {
		return trust.NewPolicy(checker, history, logger)
	}); err != nil {
		return nil, err
	}

	// Register the external enrichment adapters
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *osint.Client {
		return osint.NewClient(
			cfg.GetString("osint.virustotal_api_key"),
			cfg.GetString("osint.abuseipdb_api_key"),
			logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *attachment.Analyzer {
		return attachment.NewAnalyzer(cfg.GetString("osint.virustotal_api_key"), logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(logger *zap.Logger) (*similarity.Index, error) {
		return similarity.NewIndex(nil, logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(anomaly.NewDetector); err != nil {
		return nil, err
	}

	// Register the scan service with its full dependency set
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		classifiers *factory.ClassifierFactory,
		reputation *osint.Client,
		attachments *attachment.Analyzer,
		simIndex *similarity.Index,
		behaviorSvc *behavior.Service,
		memorySvc *memory.Service,
		table *weights.Table,
		history core.HistoryStore,
		override *trust.Policy,
		detector *anomaly.Detector,
	) (*core.ScanService, error) {
		content, err := classifiers.CreateContentClassifier()
		if err != nil {
			return nil, err
		}
		transformer, err := classifiers.CreateTransformerClassifier()
		if err != nil {
			return nil, err
		}

		deps := core.ScanDeps{
			Content:     content,
			Transformer: transformer,
			Lexical:     classifiers.CreateLexicalClassifier(),
			Reputation:  reputation,
			Attachments: attachments,
			Similarity:  simIndex,
			Behavior:    behaviorSvc,
			Memory:      memorySvc,
			Weights:     table,
			History:     history,
			Override:    override,
			Anomaly:     detector,
		}

		signalTimeout, err := cfg.GetDuration("scan.signal_timeout")
		if err != nil {
			signalTimeout = 15 * time.Second
		}
		return core.NewScanService(
			deps,
			logger,
			signalTimeout,
			cfg.GetInt("scan.batch_workers"),
			cfg.GetFloat64("scan.prior_score"),
		), nil
	}); err != nil {
		return nil, err
	}

	// Register the background scheduler. The inbox connector is injected by
	// the host deployment; the daemon runs training and pruning regardless.
	if err := container.Provide(func(
		cfg *config.Config,
		logger *zap.Logger,
		service *core.ScanService,
		trainer *weights.Trainer,
		memorySvc *memory.Service,
	) (*scheduler.Scheduler, error) {
		scanFreq, err := cfg.GetDuration("scheduler.scan_frequency")
		if err != nil {
			return nil, err
		}
		trainFreq, err := cfg.GetDuration("weights.recompute_frequency")
		if err != nil {
			return nil, err
		}
		pruneFreq, err := cfg.GetDuration("memory.prune_frequency")
		if err != nil {
			return nil, err
		}
		return scheduler.New(
			service, nil, trainer, memorySvc, logger,
			scanFreq, trainFreq, pruneFreq,
			cfg.GetInt("scheduler.max_concurrent_users"),
			cfg.GetInt("scheduler.fetch_batch_size"),
		), nil
	}); err != nil {
		return nil, err
	}

	// Register the SMTP filter
	if err := container.Provide(func(f *factory.FilterFactory, service *core.ScanService) *filter.SMTPFilter {
		return f.CreateFilter(service)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
