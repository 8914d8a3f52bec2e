package factory

import (
	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/adapters/filter"
	"github.com/autoguardian/autoguardian/internal/config"
	"github.com/autoguardian/autoguardian/internal/core"
)

// FilterFactory creates the SMTP ingestion frontend
type FilterFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger) *FilterFactory {
	return &FilterFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateFilter creates the SMTP filter from the server configuration
func (f *FilterFactory) CreateFilter(service *core.ScanService) *filter.SMTPFilter {
	return filter.NewSMTPFilter(
		service,
		f.logger,
		f.cfg.GetString("server.listen_address"),
		f.cfg.GetBool("server.block_high_risk"),
		f.cfg.GetString("server.headers.status"),
		f.cfg.GetString("server.headers.score"),
		f.cfg.GetString("server.headers.reason"),
		f.cfg.GetString("server.upstream_address"),
		f.cfg.GetInt("server.upstream_port"),
		f.cfg.GetBool("server.upstream_enabled"),
		f.cfg.GetString("server.subject_prefix"),
		f.cfg.GetBool("server.modify_subject"),
		f.cfg.GetString("scan.default_plan"),
		f.cfg.GetString("scan.default_locale"),
	)
}
