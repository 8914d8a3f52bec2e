// Package attachment inspects message attachments with filename heuristics
// and optional hash lookups against VirusTotal.
package attachment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

const (
	defaultVTBaseURL = "https://www.virustotal.com/api/v3"
	requestTimeout   = 15 * time.Second

	executableRisk = 60.0
	keywordRisk    = 20.0
)

// suspiciousExtensions are file types commonly abused for malware delivery.
var suspiciousExtensions = map[string]struct{}{
	".exe": {}, ".scr": {}, ".js": {}, ".vbs": {}, ".bat": {}, ".cmd": {},
	".lnk": {}, ".dll": {}, ".ps1": {}, ".iso": {}, ".img": {}, ".cab": {},
	".zip": {}, ".rar": {}, ".7z": {},
}

// luringKeywords in a filename suggest social-engineering bait.
var luringKeywords = []string{"password", "invoice", "urgent", "login", "update"}

// Analyzer implements core.AttachmentAnalyzer. Hash verdicts are cached for
// the lifetime of the process; VirusTotal already caches server side.
type Analyzer struct {
	httpClient *http.Client
	vtBaseURL  string
	vtKey      string
	logger     *zap.Logger

	mu        sync.Mutex
	hashCache map[string]core.Verdict
}

func NewAnalyzer(vtKey string, logger *zap.Logger) *Analyzer {
	return &Analyzer{
		httpClient: &http.Client{Timeout: requestTimeout},
		vtBaseURL:  defaultVTBaseURL,
		vtKey:      vtKey,
		logger:     logger,
		hashCache:  make(map[string]core.Verdict),
	}
}

// heuristicVerdict scores an attachment by filename alone.
func heuristicVerdict(filename string) (core.Verdict, []string) {
	lower := strings.ToLower(filename)
	ext := filepath.Ext(lower)

	risk := 0.0
	var reasons []string
	if _, ok := suspiciousExtensions[ext]; ok {
		risk += executableRisk
		reasons = append(reasons, fmt.Sprintf("Executable or compressed file type (%s)", ext))
	}
	for _, k := range luringKeywords {
		if strings.Contains(lower, k) {
			risk += keywordRisk
			reasons = append(reasons, fmt.Sprintf("Filename contains sensitive keyword (%s)", filename))
			break
		}
	}

	switch {
	case risk >= 70.0:
		return core.VerdictMalicious, reasons
	case risk >= 30.0:
		return core.VerdictSuspicious, reasons
	}
	return core.VerdictClean, reasons
}

// Analyze combines filename heuristics with a VirusTotal hash lookup when the
// attachment content is on disk and a key is configured. The aggregate
// verdict is the worst per-attachment verdict; a message without attachments
// reports none.
func (a *Analyzer) Analyze(ctx context.Context, msg *core.Message) (*core.AttachmentReport, error) {
	if len(msg.Attachments) == 0 {
		return &core.AttachmentReport{Verdict: core.VerdictNone}, nil
	}

	report := &core.AttachmentReport{Verdict: core.VerdictClean}
	for _, att := range msg.Attachments {
		verdict, reasons := heuristicVerdict(att.Filename)

		if att.Path != "" && a.vtKey != "" {
			if vtVerdict, err := a.hashVerdict(ctx, att.Path); err != nil {
				a.logger.Warn("Attachment hash lookup failed",
					zap.String("filename", att.Filename), zap.Error(err))
			} else if vtVerdict == core.VerdictMalicious || vtVerdict == core.VerdictSuspicious {
				// A positive feed verdict overrides the heuristics.
				verdict = vtVerdict
				reasons = append(reasons, fmt.Sprintf("File hash flagged %s by VirusTotal", vtVerdict))
			}
		}

		report.Details = append(report.Details, core.AttachmentDetail{
			Filename: att.Filename,
			Verdict:  verdict,
			Reasons:  reasons,
		})

		switch verdict {
		case core.VerdictMalicious:
			report.Verdict = core.VerdictMalicious
		case core.VerdictSuspicious:
			if report.Verdict != core.VerdictMalicious {
				report.Verdict = core.VerdictSuspicious
			}
		}
	}
	return report, nil
}

func (a *Analyzer) hashVerdict(ctx context.Context, path string) (core.Verdict, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.VerdictUnknown, fmt.Errorf("opening attachment: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return core.VerdictUnknown, fmt.Errorf("hashing attachment: %w", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))

	a.mu.Lock()
	cached, ok := a.hashCache[digest]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}

	verdict, err := a.vtFileVerdict(ctx, digest)
	if err != nil {
		return core.VerdictUnknown, err
	}

	a.mu.Lock()
	a.hashCache[digest] = verdict
	a.mu.Unlock()
	return verdict, nil
}

// vtFileVerdict maps VirusTotal file analysis stats to a verdict: two or
// more malicious engine hits is malicious, any hit at all suspicious. An
// unindexed hash is unknown, not an error.
func (a *Analyzer) vtFileVerdict(ctx context.Context, digest string) (core.Verdict, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.vtBaseURL+"/files/"+digest, nil)
	if err != nil {
		return core.VerdictUnknown, err
	}
	req.Header.Set("x-apikey", a.vtKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return core.VerdictUnknown, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.VerdictUnknown, nil
	}
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

	stats := payload.Data.Attributes.LastAnalysisStats
	switch {
	case stats.Malicious >= 2:
		return core.VerdictMalicious, nil
	case stats.Malicious+stats.Suspicious >= 1:
		return core.VerdictSuspicious, nil
	}
	return core.VerdictClean, nil
}
