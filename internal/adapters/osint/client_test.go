package osint

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/autoguardian/autoguardian/internal/core"
)

func TestExtractTargets(t *testing.T) {
	text := `Click https://phishy.example/login or http://198.51.100.7/track
and see https://phishy.example/reset plus https://other.example:8443/x`
	domains, ips := extractTargets(text)

	if len(domains) != 2 {
		t.Fatalf("expected 2 unique domains, got %v", domains)
	}
	if domains[0] != "phishy.example" || domains[1] != "other.example" {
		t.Fatalf("unexpected domains %v", domains)
	}
	if len(ips) != 1 || ips[0] != "198.51.100.7" {
		t.Fatalf("unexpected ips %v", ips)
	}
}

func TestEnrichWithoutKeys(t *testing.T) {
	c := NewClient("", "", zap.NewNop())
	rep, err := c.Enrich(context.Background(), &core.Message{Body: "https://x.example"})
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if rep.Available || rep.Verdict != core.VerdictUnknown {
		t.Fatalf("expected unavailable/unknown, got %+v", rep)
	}
}

func TestEnrichNoLinks(t *testing.T) {
	c := NewClient("vt-key", "", zap.NewNop())
	rep, err := c.Enrich(context.Background(), &core.Message{Body: "no links here"})
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	if rep.Verdict != core.VerdictClean {
		t.Fatalf("expected clean, got %s", rep.Verdict)
	}
}

func vtServer(t *testing.T, malicious, suspicious int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-apikey") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprintf(w, `{"data":{"attributes":{"last_analysis_stats":{"malicious":%d,"suspicious":%d}}}}`,
			malicious, suspicious)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVTVerdictMapping(t *testing.T) {
	cases := []struct {
		malicious, suspicious int
		want                  core.Verdict
	}{
		{0, 0, core.VerdictClean},
		{1, 0, core.VerdictSuspicious},
		{0, 1, core.VerdictSuspicious},
		{2, 0, core.VerdictMalicious},
		{1, 1, core.VerdictMalicious},
	}
	for _, tc := range cases {
		srv := vtServer(t, tc.malicious, tc.suspicious)
		c := NewClient("vt-key", "", zap.NewNop())
		c.vtBaseURL = srv.URL

		rep, err := c.Enrich(context.Background(), &core.Message{Body: "https://check.example/x"})
		if err != nil {
			t.Fatalf("enrich: %v", err)
		}
		if rep.Verdict != tc.want {
			t.Fatalf("stats (%d,%d): expected %s, got %s", tc.malicious, tc.suspicious, tc.want, rep.Verdict)
		}
	}
}

func TestAbuseIPVerdictMapping(t *testing.T) {
	cases := []struct {
		score int
		want  core.Verdict
	}{
		{0, core.VerdictClean},
		{24, core.VerdictClean},
		{25, core.VerdictSuspicious},
		{75, core.VerdictMalicious},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"data":{"abuseConfidenceScore":%d}}`, tc.score)
		}))
		c := NewClient("", "abuse-key", zap.NewNop())
		c.abuseBaseURL = srv.URL

		rep, err := c.Enrich(context.Background(), &core.Message{Body: "http://203.0.113.9/x"})
		if err != nil {
			t.Fatalf("enrich: %v", err)
		}
		srv.Close()
		if rep.Verdict != tc.want {
			t.Fatalf("score %d: expected %s, got %s", tc.score, tc.want, rep.Verdict)
		}
	}
}

func TestLookupFailureDegradesGracefully(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("vt-key", "", zap.NewNop())
	c.vtBaseURL = srv.URL

	rep, err := c.Enrich(context.Background(), &core.Message{Body: "https://down.example/x"})
	if err != nil {
		t.Fatalf("failed lookups must not error the report: %v", err)
	}
	if rep.Verdict != core.VerdictClean {
		t.Fatalf("expected clean on lookup failure, got %s", rep.Verdict)
	}
}
