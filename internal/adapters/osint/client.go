// Package osint queries external reputation feeds (VirusTotal for domains,
// AbuseIPDB for addresses) over the links found in a message.
package osint

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

const (
	defaultVTBaseURL    = "https://www.virustotal.com/api/v3"
	defaultAbuseBaseURL = "https://api.abuseipdb.com/api/v2"

	requestTimeout = 12 * time.Second

	// Per-scan cap on outbound lookups.
	maxLookups = 10
)

var urlRE = regexp.MustCompile(`(?i)https?://[^\s)>\]"']+`)

// Client implements core.ReputationClient. Without API keys it degrades to an
// always-unknown verdict instead of failing scans.
type Client struct {
	httpClient   *http.Client
	vtBaseURL    string
	abuseBaseURL string
	vtKey        string
	abuseKey     string
	logger       *zap.Logger
}

func NewClient(vtKey, abuseKey string, logger *zap.Logger) *Client {
	return &Client{
		httpClient:   &http.Client{Timeout: requestTimeout},
		vtBaseURL:    defaultVTBaseURL,
		abuseBaseURL: defaultAbuseBaseURL,
		vtKey:        vtKey,
		abuseKey:     abuseKey,
		logger:       logger,
	}
}

// extractTargets pulls unique domains and IP addresses out of the link URLs
// in the text.
func extractTargets(text string) (domains, ips []string) {
	seen := make(map[string]struct{})
	for _, raw := range urlRE.FindAllString(text, -1) {
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		host := strings.ToLower(u.Hostname())
		if host == "" {
			continue
		}
		if _, dup := seen[host]; dup {
			continue
		}
		seen[host] = struct{}{}
		if net.ParseIP(host) != nil {
			ips = append(ips, host)
		} else {
			domains = append(domains, host)
		}
	}
	return domains, ips
}

// Enrich looks up every domain and IP in the message and aggregates a coarse
// verdict: any malicious hit wins, then any suspicious one.
func (c *Client) Enrich(ctx context.Context, msg *core.Message) (*core.ReputationReport, error) {
	if c.vtKey == "" && c.abuseKey == "" {
		return &core.ReputationReport{Verdict: core.VerdictUnknown, Available: false}, nil
	}

	domains, ips := extractTargets(msg.Subject + "\n" + msg.Body)
	if len(domains) > maxLookups {
		domains = domains[:maxLookups]
	}
	if len(ips) > maxLookups {
		ips = ips[:maxLookups]
	}

	report := &core.ReputationReport{Verdict: core.VerdictClean, Available: true}
	if len(domains) == 0 && len(ips) == 0 {
		return report, nil
	}

	merge := func(v core.Verdict, reason string) {
		switch v {
		case core.VerdictMalicious:
			report.Verdict = core.VerdictMalicious
			report.Reasons = append(report.Reasons, reason)
		case core.VerdictSuspicious:
			if report.Verdict != core.VerdictMalicious {
				report.Verdict = core.VerdictSuspicious
			}
			report.Reasons = append(report.Reasons, reason)
		}
	}

	for _, d := range domains {
		v, err := c.vtDomainVerdict(ctx, d)
		if err != nil {
			c.logger.Warn("VirusTotal lookup failed", zap.String("domain", d), zap.Error(err))
			continue
		}
		merge(v, fmt.Sprintf("Domain %s flagged %s by VirusTotal", d, v))
	}
	for _, ip := range ips {
		v, err := c.abuseIPVerdict(ctx, ip)
		if err != nil {
			c.logger.Warn("AbuseIPDB lookup failed", zap.String("ip", ip), zap.Error(err))
			continue
		}
		merge(v, fmt.Sprintf("Address %s flagged %s by AbuseIPDB", ip, v))
	}
	return report, nil
}

// vtDomainVerdict maps VirusTotal analysis stats to a verdict: two or more
// malicious+suspicious engine hits is malicious, one is suspicious.
func (c *Client) vtDomainVerdict(ctx context.Context, domain string) (core.Verdict, error) {
	if c.vtKey == "" {
		return core.VerdictUnknown, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.vtBaseURL+"/domains/"+domain, nil)
	if err != nil {
		return core.VerdictUnknown, err
	}
	req.Header.Set("x-apikey", c.vtKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.VerdictUnknown, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.VerdictUnknown, fmt.Errorf("virustotal returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Attributes struct {
				LastAnalysisStats struct {
					Malicious  int `json:"malicious"`
					Suspicious int `json:"suspicious"`
				} `json:"last_analysis_stats"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return core.VerdictUnknown, fmt.Errorf("decoding virustotal response: %w", err)
	}

	hits := payload.Data.Attributes.LastAnalysisStats.Malicious +
		payload.Data.Attributes.LastAnalysisStats.Suspicious
	switch {
	case hits >= 2:
		return core.VerdictMalicious, nil
	case hits == 1:
		return core.VerdictSuspicious, nil
	}
	return core.VerdictClean, nil
}

// abuseIPVerdict maps an AbuseIPDB confidence score to a verdict: 75 and up
// is malicious, 25 and up suspicious.
func (c *Client) abuseIPVerdict(ctx context.Context, ip string) (core.Verdict, error) {
	if c.abuseKey == "" {
		return core.VerdictUnknown, nil
	}

	q := url.Values{}
	q.Set("ipAddress", ip)
	q.Set("maxAgeInDays", "90")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.abuseBaseURL+"/check?"+q.Encode(), nil)
	if err != nil {
		return core.VerdictUnknown, err
	}
	req.Header.Set("Key", c.abuseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.VerdictUnknown, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return core.VerdictUnknown, fmt.Errorf("abuseipdb returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			AbuseConfidenceScore int `json:"abuseConfidenceScore"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return core.VerdictUnknown, fmt.Errorf("decoding abuseipdb response: %w", err)
	}

	switch {
	case payload.Data.AbuseConfidenceScore >= 75:
		return core.VerdictMalicious, nil
	case payload.Data.AbuseConfidenceScore >= 25:
		return core.VerdictSuspicious, nil
	}
	return core.VerdictClean, nil
}
