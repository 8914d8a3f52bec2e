package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/config"
	"github.com/autoguardian/autoguardian/internal/core"
	"github.com/autoguardian/autoguardian/internal/history"
	"github.com/autoguardian/autoguardian/internal/memory"
)

// StoreFactory creates the persistence backends: fingerprint memory and scan
// history
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMemoryStore creates the fingerprint store based on the configuration
func (f *StoreFactory) CreateMemoryStore() (memory.Store, error) {
	storeType := f.cfg.GetString("memory.store")

	switch storeType {
	case "memory":
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		sqlitePath := f.cfg.GetString("memory.sqlite_path")
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return memory.NewSqliteStore(sqlitePath)
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     f.cfg.GetString("memory.redis_address"),
			Password: f.cfg.GetString("memory.redis_password"),
			DB:       f.cfg.GetInt("memory.redis_db"),
		})
		return memory.NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("unsupported memory store type: %s", storeType)
	}
}

// CreateHistoryStore creates the scan history store based on the configuration
func (f *StoreFactory) CreateHistoryStore() (core.HistoryStore, error) {
	storeType := f.cfg.GetString("history.store")

	switch storeType {
	case "sqlite":
		sqlitePath := f.cfg.GetString("history.sqlite_path")
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return history.NewSqliteStore(sqlitePath)
	case "mysql":
		return history.NewMysqlStore(f.cfg.GetString("history.mysql_dsn"))
	default:
		return nil, fmt.Errorf("unsupported history store type: %s", storeType)
	}
}
