package console_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/urivet/urivet/internal/console"
	"github.com/urivet/urivet/internal/credentials"
	"github.com/urivet/urivet/internal/risk"
	"github.com/urivet/urivet/internal/session"
	"github.com/urivet/urivet/internal/submissions"
	"github.com/urivet/urivet/internal/webrisk"
	"go.uber.org/zap"
)

// ── In-memory stub for the submission log ──────────────────────────────────

type stubLog struct {
	appended   []submissions.Record
	failAppend bool
	failRecent bool
}

func (s *stubLog) Append(_ context.Context, projectID, uri string, threatTypes []string, operationName string) (*submissions.Record, error) {
	if s.failAppend {
		return nil, errors.New("connection refused")
	}
	rec := submissions.Record{
		ProjectID:     projectID,
		URI:           uri,
		ThreatTypes:   threatTypes,
		OperationName: operationName,
	}
	s.appended = append(s.appended, rec)
	return &rec, nil
}

func (s *stubLog) Recent(_ context.Context, limit int) ([]submissions.Record, error) {
	if s.failRecent {
		return nil, errors.New("connection refused")
	}
	if limit < len(s.appended) {
		return s.appended[:limit], nil
	}
	return s.appended, nil
}

// ── Helpers ────────────────────────────────────────────────────────────────

func validKeyBlob(t *testing.T) []byte {
	t.Helper()
	blob, err := os.ReadFile("testdata/service_account.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return blob
}

// apiServer spins up a fake Web Risk endpoint and counts requests to it.
func apiServer(t *testing.T, handlerFn http.HandlerFunc) (*webrisk.Client, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handlerFn(w, r)
	}))
	t.Cleanup(ts.Close)
	return webrisk.New(webrisk.WithEndpoint(ts.URL)), &calls
}

// stubExchange records whether it ran and returns a plain HTTP client so
// bearer-authenticated calls hit the fake API without OAuth.
func stubExchange(called *atomic.Int64) func(context.Context, *credentials.Key) (*http.Client, error) {
	return func(_ context.Context, _ *credentials.Key) (*http.Client, error) {
		if called != nil {
			called.Add(1)
		}
		return http.DefaultClient, nil
	}
}

// ── Lookup ─────────────────────────────────────────────────────────────────

func TestLookup_missingFields(t *testing.T) {
	api, calls := apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())

	_, err := svc.Lookup(context.Background(), &session.State{}, "", "http://example.com")
	if !errors.Is(err, console.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("validation failure must not reach the remote API")
	}
}

func TestLookup_threatFoundPushesHistory(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"threat":{"threatTypes":["MALWARE"]}}`))
	})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	result, err := svc.Lookup(context.Background(), state, "key", "http://bad.example")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !result.ThreatFound {
		t.Error("expected ThreatFound=true")
	}
	if state.Lookups.Len() != 1 {
		t.Errorf("lookup history len = %d, want 1", state.Lookups.Len())
	}
	if state.Scans.Len() != 0 {
		t.Error("scan history must be untouched by lookups")
	}
}

func TestLookup_cleanResult(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	result, err := svc.Lookup(context.Background(), state, "key", "http://example.com")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.ThreatFound {
		t.Error("expected ThreatFound=false for an empty threat object")
	}
}

func TestLookup_apiErrorCarriesBody(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"forbidden"}`, http.StatusForbidden)
	})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	_, err := svc.Lookup(context.Background(), state, "key", "http://example.com")
	var apiErr *webrisk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Body == "" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if state.Lookups.Len() != 0 {
		t.Error("failed lookups must not enter history")
	}
}

// ── Evaluate ───────────────────────────────────────────────────────────────

func TestEvaluate_endToEnd(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"scores":[{"threatType":"MALWARE","confidenceLevel":"HIGH"}]}`))
	})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	eval, err := svc.Evaluate(context.Background(), state, "key", "http://example.com")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !eval.HighRisk {
		t.Error("expected HighRisk=true")
	}
	if eval.Threats[0].Tier != risk.TierHigh || eval.Threats[0].Label != "High" {
		t.Errorf("malware entry = %+v", eval.Threats[0])
	}
	for _, entry := range eval.Threats[1:] {
		if entry.Tier != risk.TierSafe || entry.Label != "Safe" {
			t.Errorf("entry %s should default to safe, got %+v", entry.Type, entry)
		}
	}
	if state.Scans.Len() != 1 {
		t.Errorf("scan history len = %d, want 1", state.Scans.Len())
	}
}

func TestEvaluate_parseFailureIsDistinctFromAPIError(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`this is not json`))
	})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	_, err := svc.Evaluate(context.Background(), state, "key", "http://example.com")
	if !errors.Is(err, risk.ErrUnparsable) {
		t.Errorf("expected ErrUnparsable, got %v", err)
	}
	var apiErr *webrisk.APIError
	if errors.As(err, &apiErr) {
		t.Error("a 200 with garbage body must not classify as an API error")
	}
	if state.Scans.Len() != 0 {
		t.Error("unparsable evaluations must not enter history")
	}
}

// ── Submit ─────────────────────────────────────────────────────────────────

func TestSubmit_malformedKeyNoRemoteCalls(t *testing.T) {
	api, calls := apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	log := &stubLog{}
	var exchanged atomic.Int64
	svc := console.NewService(api, log, stubExchange(&exchanged), zap.NewNop())

	_, err := svc.Submit(context.Background(), &session.State{}, console.SubmitInput{
		ProjectID:   "proj-a",
		URI:         "http://bad.example",
		ThreatTypes: []string{webrisk.ThreatMalware},
		UploadedKey: []byte("{broken"),
	})
	if !errors.Is(err, credentials.ErrMalformedKey) {
		t.Errorf("expected ErrMalformedKey, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("malformed key must not reach the remote API")
	}
	if exchanged.Load() != 0 {
		t.Error("malformed key must not attempt token exchange")
	}
	if len(log.appended) != 0 {
		t.Error("malformed key must not write the submission log")
	}
}

func TestSubmit_missingKey(t *testing.T) {
	api, calls := apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	svc := console.NewService(api, &stubLog{}, stubExchange(nil), zap.NewNop())

	_, err := svc.Submit(context.Background(), &session.State{}, console.SubmitInput{
		ProjectID:   "proj-a",
		URI:         "http://bad.example",
		ThreatTypes: []string{webrisk.ThreatMalware},
	})
	if !errors.Is(err, credentials.ErrMissingKey) {
		t.Errorf("expected ErrMissingKey, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("missing key must not reach the remote API")
	}
}

func TestSubmit_uploadedKeyCachedAndLogged(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"projects/proj-a/operations/op-1"}`))
	})
	log := &stubLog{}
	svc := console.NewService(api, log, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	result, err := svc.Submit(context.Background(), state, console.SubmitInput{
		ProjectID:   "proj-a",
		URI:         "http://bad.example",
		ThreatTypes: []string{webrisk.ThreatSocialEngineering},
		UploadedKey: validKeyBlob(t),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.OperationName != "projects/proj-a/operations/op-1" {
		t.Errorf("OperationName = %q", result.OperationName)
	}
	if !result.KeyCached {
		t.Error("an uploaded key must be cached into the session")
	}
	if state.Key == nil {
		t.Fatal("session key cache is empty after upload")
	}
	if len(log.appended) != 1 {
		t.Fatalf("log writes = %d, want 1", len(log.appended))
	}
	if log.appended[0].OperationName != result.OperationName {
		t.Errorf("logged operation = %q", log.appended[0].OperationName)
	}
	if result.Warning != "" {
		t.Errorf("unexpected warning: %q", result.Warning)
	}
}

func TestSubmit_cachedKeyReused(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"projects/proj-a/operations/op-2"}`))
	})
	svc := console.NewService(api, &stubLog{}, stubExchange(nil), zap.NewNop())

	cached, err := credentials.Parse(validKeyBlob(t))
	if err != nil {
		t.Fatal(err)
	}
	state := &session.State{Key: cached}

	result, err := svc.Submit(context.Background(), state, console.SubmitInput{
		ProjectID:   "proj-a",
		URI:         "http://bad.example",
		ThreatTypes: []string{webrisk.ThreatMalware},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.KeyCached {
		t.Error("reusing a cached key must not report KeyCached")
	}
	if state.Key != cached {
		t.Error("cached key must be used unchanged")
	}
}

func TestSubmit_logFailureIsAWarningNotAFailure(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"projects/proj-a/operations/op-3"}`))
	})
	log := &stubLog{failAppend: true}
	svc := console.NewService(api, log, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	result, err := svc.Submit(context.Background(), state, console.SubmitInput{
		ProjectID:   "proj-a",
		URI:         "http://bad.example",
		ThreatTypes: []string{webrisk.ThreatMalware},
		UploadedKey: validKeyBlob(t),
	})
	if err != nil {
		t.Fatalf("Submit must succeed despite a log write failure, got %v", err)
	}
	if result.Warning == "" {
		t.Error("expected a warning about the failed log write")
	}
	if result.OperationName == "" {
		t.Error("operation name must still be reported")
	}
}

func TestSubmit_rejectsUnknownThreatType(t *testing.T) {
	api, calls := apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	svc := console.NewService(api, &stubLog{}, stubExchange(nil), zap.NewNop())

	_, err := svc.Submit(context.Background(), &session.State{}, console.SubmitInput{
		ProjectID:   "proj-a",
		URI:         "http://bad.example",
		ThreatTypes: []string{"RANSOMWARE"},
		UploadedKey: validKeyBlob(t),
	})
	if !errors.Is(err, console.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("invalid threat type must not reach the remote API")
	}
}

// ── CheckStatus ────────────────────────────────────────────────────────────

func TestQualifyOperationName(t *testing.T) {
	got := console.QualifyOperationName("proj-a", "12345")
	if got != "projects/proj-a/operations/12345" {
		t.Errorf("QualifyOperationName = %q", got)
	}

	full := "projects/proj-a/operations/12345"
	if got := console.QualifyOperationName("proj-a", full); got != full {
		t.Errorf("fully qualified name must pass through unchanged, got %q", got)
	}
}

func TestCheckStatus_success(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/projects/proj-a/operations/12345" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"name":"projects/proj-a/operations/12345","done":true}`))
	})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())
	state := &session.State{}

	result, err := svc.CheckStatus(context.Background(), state, console.CheckStatusInput{
		ProjectID:   "proj-a",
		OperationID: "12345",
		UploadedKey: validKeyBlob(t),
	})
	if err != nil {
		t.Fatalf("CheckStatus: %v", err)
	}
	if result.OperationName != "projects/proj-a/operations/12345" {
		t.Errorf("OperationName = %q", result.OperationName)
	}
	if result.RawResponse == "" {
		t.Error("expected a raw status payload")
	}
	if state.LastAction != "check_status" {
		t.Errorf("LastAction = %q", state.LastAction)
	}
}

func TestCheckStatus_missingFields(t *testing.T) {
	api, calls := apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())

	_, err := svc.CheckStatus(context.Background(), &session.State{}, console.CheckStatusInput{
		ProjectID: "proj-a",
	})
	if !errors.Is(err, console.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
	if calls.Load() != 0 {
		t.Error("validation failure must not reach the remote API")
	}
}

// ── RecentSubmissions ──────────────────────────────────────────────────────

func TestRecentSubmissions_degradedWithoutStore(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	svc := console.NewService(api, nil, stubExchange(nil), zap.NewNop())

	records, degraded := svc.RecentSubmissions(context.Background(), 50)
	if !degraded {
		t.Error("expected degraded=true without a configured store")
	}
	if len(records) != 0 {
		t.Errorf("records = %v, want empty", records)
	}
}

func TestRecentSubmissions_degradedOnStoreError(t *testing.T) {
	api, _ := apiServer(t, func(w http.ResponseWriter, r *http.Request) {})
	svc := console.NewService(api, &stubLog{failRecent: true}, stubExchange(nil), zap.NewNop())

	records, degraded := svc.RecentSubmissions(context.Background(), 50)
	if !degraded {
		t.Error("expected degraded=true when the store errors")
	}
	if len(records) != 0 {
		t.Error("degraded reads return an empty history, never an error")
	}
}
