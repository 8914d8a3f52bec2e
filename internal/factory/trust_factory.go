package factory

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/config"
	"github.com/autoguardian/autoguardian/internal/trust"
)

// TrustFactory creates the trusted-sender checker with its configured cache
type TrustFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewTrustFactory creates a new trust factory
func NewTrustFactory(cfg *config.Config, logger *zap.Logger) *TrustFactory {
	return &TrustFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateChecker creates the trust checker based on the configuration
func (f *TrustFactory) CreateChecker() (*trust.Checker, error) {
	cacheType := f.cfg.GetString("trust.cache")

	var cache trust.Cache
	switch cacheType {
	case "memory":
		cache = trust.NewMemoryCache()
	case "sqlite":
		sqlitePath := f.cfg.GetString("trust.sqlite_path")
		if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		var err error
		cache, err = trust.NewSqliteCache(sqlitePath)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported trust cache type: %s", cacheType)
	}

	return trust.NewChecker(net.DefaultResolver, cache, f.logger), nil
}
