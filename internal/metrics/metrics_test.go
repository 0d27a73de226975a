package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, err := io.ReadAll(rec.Result().Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return rec.Code, string(body)
}

func TestHandlerExposesIssuerSeries(t *testing.T) {
	m := New()
	m.ObserveRequest(OutcomeIssued)
	m.ObserveRequest(OutcomeIssued)
	m.ObserveRequest(OutcomeAuthFailed)
	m.ObserveCertificate(CertFailed)
	m.ObserveStage("authenticate", 20*time.Millisecond)

	code, body := scrape(t, m.Handler())
	if code != http.StatusOK {
		t.Fatalf("unexpected status %d", code)
	}
	for _, want := range []string{
		`issuer_token_requests_total{outcome="issued"} 2`,
		`issuer_token_requests_total{outcome="auth_failed"} 1`,
		`issuer_ssh_certificates_total{outcome="failed"} 1`,
		`issuer_stage_duration_seconds_count{stage="authenticate"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %q in exposition:\n%s", want, body)
		}
	}
}

func TestNilMetricsIsInert(t *testing.T) {
	var m *Metrics
	m.ObserveRequest(OutcomeInternal)
	m.ObserveCertificate(CertIssued)
	m.ObserveStage("mint", time.Millisecond)
	if code, _ := scrape(t, m.Handler()); code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", code)
	}
}
