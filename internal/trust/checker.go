package trust

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	cacheTTL   = 30 * 24 * time.Hour
	dnsTimeout = 2 * time.Second
)

// localAllowlist covers major providers whose domains are trusted without a
// DNS check. Spoofed lookalikes fail the normalization step before reaching
// this list.
var localAllowlist = map[string]struct{}{
	"google.com":    {},
	"gmail.com":     {},
	"instagram.com": {},
	"facebook.com":  {},
	"meta.com":      {},
	"paypal.com":    {},
	"apple.com":     {},
	"icloud.com":    {},
	"microsoft.com": {},
	"outlook.com":   {},
	"office365.com": {},
	"amazon.com":    {},
	"linkedin.com":  {},
	"twitter.com":   {},
	"x.com":         {},
	"github.com":    {},
	"netflix.com":   {},
	"spotify.com":   {},
	"youtube.com":   {},
	"openai.com":    {},
}

// Resolver is the DNS dependency, satisfied by *net.Resolver.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// Cache stores verification outcomes per normalized domain.
type Cache interface {
	Get(ctx context.Context, domain string) (trusted bool, at time.Time, ok bool)
	Put(ctx context.Context, domain string, trusted bool, at time.Time) error
}

// Checker implements core.TrustChecker. Free-plan accounts only consult the
// local allowlist; Pro and Enterprise additionally verify DMARC/SPF presence
// over DNS. Any lookup failure reports not-trusted.
type Checker struct {
	resolver Resolver
	cache    Cache
	logger   *zap.Logger
	now      func() time.Time
}

func NewChecker(resolver Resolver, cache Cache, logger *zap.Logger) *Checker {
	return &Checker{
		resolver: resolver,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

func planHasDNSVerification(plan string) bool {
	switch strings.ToLower(plan) {
	case "pro", "enterprise":
		return true
	}
	return false
}

// IsTrusted reports whether the sender's domain is verified high-trust.
func (c *Checker) IsTrusted(ctx context.Context, email, plan string) bool {
	domain := DomainOf(email)
	if domain == "" {
		return false
	}
	normalized, nfkcChanged := NormalizeDomain(domain)
	if nfkcChanged {
		c.logger.Warn("Domain unstable under normalization, refusing trust",
			zap.String("domain", domain))
		return false
	}

	now := c.now().UTC()
	if c.cache != nil {
		if trusted, at, ok := c.cache.Get(ctx, normalized); ok && now.Sub(at) < cacheTTL {
			return trusted
		}
	}

	trusted := false
	if _, ok := localAllowlist[normalized]; ok {
		trusted = true
	} else if planHasDNSVerification(plan) {
		trusted = c.verifyDNS(ctx, normalized)
	}

	if c.cache != nil {
		if err := c.cache.Put(ctx, normalized, trusted, now); err != nil {
			c.logger.Warn("Failed to cache trust verdict",
				zap.String("domain", normalized), zap.Error(err))
		}
	}
	return trusted
}

// verifyDNS accepts a domain that publishes a DMARC record or an SPF policy.
func (c *Checker) verifyDNS(ctx context.Context, domain string) bool {
	dctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	if records, err := c.resolver.LookupTXT(dctx, "_dmarc."+domain); err == nil && len(records) > 0 {
		return true
	}

	dctx, cancel = context.WithTimeout(ctx, dnsTimeout)
	defer cancel()
	records, err := c.resolver.LookupTXT(dctx, domain)
	if err != nil {
		return false
	}
	for _, txt := range records {
		if strings.Contains(txt, "v=spf1") {
			return true
		}
	}
	return false
}

// OverrideTrust pins a domain's trust verdict in the cache, bypassing
// verification until it expires or is revoked.
func (c *Checker) OverrideTrust(ctx context.Context, domain string, trusted bool) error {
	normalized, _ := NormalizeDomain(domain)
	return c.cache.Put(ctx, normalized, trusted, c.now().UTC())
}

// RevokeTrust marks a domain not-trusted.
func (c *Checker) RevokeTrust(ctx context.Context, domain string) error {
	return c.OverrideTrust(ctx, domain, false)
}
