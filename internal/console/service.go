// Package console sequences the four console workflows (lookup, evaluate,
// submit, check-status) over the Web Risk client, the credential resolver,
// and the session state. Each workflow is one linear pass: validate, resolve
// credentials if needed, call the API, classify the result, record history.
package console

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/urivet/urivet/internal/credentials"
	"github.com/urivet/urivet/internal/risk"
	"github.com/urivet/urivet/internal/session"
	"github.com/urivet/urivet/internal/submissions"
	"github.com/urivet/urivet/internal/webrisk"
	"go.uber.org/zap"
)

// RecentSubmissionsLimit caps the submission history shown on the console.
const RecentSubmissionsLimit = 50

// submissionLog is the durable-log interface required by the Service.
// *submissions.Repository satisfies it.
type submissionLog interface {
	Append(ctx context.Context, projectID, uri string, threatTypes []string, operationName string) (*submissions.Record, error)
	Recent(ctx context.Context, limit int) ([]submissions.Record, error)
}

// exchangeFn exchanges a parsed service-account key for an authorized HTTP
// client. In production this is credentials.Exchange; in tests it is stubbed.
type exchangeFn func(ctx context.Context, key *credentials.Key) (*http.Client, error)

// Service runs the console workflows.
type Service struct {
	api      *webrisk.Client
	log      submissionLog
	exchange exchangeFn
	logger   *zap.Logger
}

// NewService creates a Service. log may be nil when no durable store is
// configured; submission history then reads as degraded. Pass nil for
// exchange to use real token exchange.
func NewService(api *webrisk.Client, log submissionLog, exchange exchangeFn, logger *zap.Logger) *Service {
	if exchange == nil {
		exchange = credentials.Exchange
	}
	return &Service{api: api, log: log, exchange: exchange, logger: logger}
}

// Lookup checks a URI against the lookup endpoint and records the result in
// the session's lookup history. Result.ThreatFound carries the overall
// classification.
func (s *Service) Lookup(ctx context.Context, state *session.State, apiKey, uri string) (*session.LookupResult, error) {
	if apiKey == "" || uri == "" {
		return nil, fmt.Errorf("%w: API key and URI are required", ErrValidation)
	}

	resp, raw, err := s.api.Lookup(ctx, apiKey, uri, webrisk.LookupThreatTypes)
	if err != nil {
		return nil, err
	}

	result := session.LookupResult{
		URI:         uri,
		ScannedAt:   time.Now(),
		ThreatFound: len(resp.Threat) > 0,
		ThreatInfo:  resp.Threat,
		RawJSON:     risk.PrettyJSON(raw),
	}
	state.Lookups.Push(result)

	s.logger.Info("lookup complete",
		zap.String("uri", uri),
		zap.Bool("threat_found", result.ThreatFound),
	)
	return &result, nil
}

// Evaluate scores a URI via the evaluate endpoint, normalizes the response,
// and records it in the session's scan history. A response body that cannot
// be interpreted surfaces as risk.ErrUnparsable, distinct from an API error.
func (s *Service) Evaluate(ctx context.Context, state *session.State, apiKey, uri string) (*risk.Evaluation, error) {
	if apiKey == "" || uri == "" {
		return nil, fmt.Errorf("%w: API key and URI are required", ErrValidation)
	}

	raw, err := s.api.Evaluate(ctx, apiKey, uri, webrisk.EvaluateThreatTypes)
	if err != nil {
		return nil, err
	}

	eval, err := risk.Normalize(uri, raw)
	if err != nil {
		return nil, err
	}
	state.Scans.Push(*eval)

	s.logger.Info("evaluation complete",
		zap.String("uri", uri),
		zap.Bool("high_risk", eval.HighRisk),
	)
	return eval, nil
}

// SubmitInput are the fields of a submission request. UploadedKey is the raw
// service-account key file content, empty when the user did not upload one.
type SubmitInput struct {
	ProjectID   string
	URI         string
	ThreatTypes []string
	UploadedKey []byte
}

// SubmitResult is the outcome of a successful submission.
type SubmitResult struct {
	OperationName string `json:"operation_name"`
	RawResponse   string `json:"raw_response"`
	// KeyCached is true when an uploaded key was cached into the session by
	// this call.
	KeyCached bool `json:"key_cached"`
	// Warning is set when the submission succeeded but writing the durable
	// log failed. It never turns the outcome into a failure.
	Warning string `json:"warning,omitempty"`
}

// Submit sends a URI to the submission endpoint and, on success, appends a
// record to the durable log. A log-write failure degrades to a warning.
func (s *Service) Submit(ctx context.Context, state *session.State, in SubmitInput) (*SubmitResult, error) {
	if in.ProjectID == "" || in.URI == "" || len(in.ThreatTypes) == 0 {
		return nil, fmt.Errorf("%w: project ID, URI, and at least one threat type are required", ErrValidation)
	}
	for _, t := range in.ThreatTypes {
		if !webrisk.ValidSubmissionType(t) {
			return nil, fmt.Errorf("%w: unsupported threat type %q", ErrValidation, t)
		}
	}

	key, cached, err := s.resolveKey(state, in.UploadedKey)
	if err != nil {
		return nil, err
	}
	authed, err := s.exchange(ctx, key)
	if err != nil {
		return nil, err
	}

	resp, raw, err := s.api.Submit(ctx, authed, in.ProjectID, in.URI, in.ThreatTypes)
	state.LastAction = "submit"
	state.LastResponse = risk.PrettyJSON(raw)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{
		OperationName: resp.Name,
		RawResponse:   state.LastResponse,
		KeyCached:     cached,
	}
	if resp.Name != "" {
		if warn := s.appendLog(ctx, in, resp.Name); warn != "" {
			result.Warning = warn
		}
	}

	s.logger.Info("submission complete",
		zap.String("project_id", in.ProjectID),
		zap.String("uri", in.URI),
		zap.String("operation", resp.Name),
	)
	return result, nil
}

// CheckStatusInput are the fields of a status-check request.
type CheckStatusInput struct {
	ProjectID   string
	OperationID string
	UploadedKey []byte
}

// StatusResult is the outcome of a successful status check.
type StatusResult struct {
	OperationName string `json:"operation_name"`
	RawResponse   string `json:"raw_response"`
	KeyCached     bool   `json:"key_cached"`
}

// CheckStatus polls the status of a submission operation. An operation ID
// that already contains a path separator is taken as fully qualified;
// otherwise the name is built from the project ID.
func (s *Service) CheckStatus(ctx context.Context, state *session.State, in CheckStatusInput) (*StatusResult, error) {
	if in.ProjectID == "" || in.OperationID == "" {
		return nil, fmt.Errorf("%w: project ID and operation ID are required", ErrValidation)
	}

	key, cached, err := s.resolveKey(state, in.UploadedKey)
	if err != nil {
		return nil, err
	}
	authed, err := s.exchange(ctx, key)
	if err != nil {
		return nil, err
	}

	name := QualifyOperationName(in.ProjectID, in.OperationID)
	raw, err := s.api.GetOperation(ctx, authed, name)
	state.LastAction = "check_status"
	state.LastResponse = risk.PrettyJSON(raw)
	if err != nil {
		return nil, err
	}

	s.logger.Info("operation status retrieved", zap.String("operation", name))
	return &StatusResult{
		OperationName: name,
		RawResponse:   state.LastResponse,
		KeyCached:     cached,
	}, nil
}

// RecentSubmissions returns the durable submission history, newest first.
// degraded is true when the log is unconfigured or unreachable; the history
// then reads as empty rather than failing the page.
func (s *Service) RecentSubmissions(ctx context.Context, limit int) (records []submissions.Record, degraded bool) {
	if s.log == nil {
		return nil, true
	}
	records, err := s.log.Recent(ctx, limit)
	if err != nil {
		s.logger.Warn("could not fetch submission history", zap.Error(err))
		return nil, true
	}
	return records, false
}

// QualifyOperationName returns the fully qualified operation resource name.
// An ID already containing "/" is passed through verbatim.
func QualifyOperationName(projectID, operationID string) string {
	if strings.Contains(operationID, "/") {
		return operationID
	}
	return fmt.Sprintf("projects/%s/operations/%s", projectID, operationID)
}

// resolveKey applies the credential precedence rule and caches an uploaded
// key into the session. Returns the active key and whether it was just
// cached.
func (s *Service) resolveKey(state *session.State, uploaded []byte) (*credentials.Key, bool, error) {
	key, source, err := credentials.Resolve(uploaded, state.Key)
	if err != nil {
		return nil, false, err
	}
	if source == credentials.SourceUploaded {
		state.Key = key
		s.logger.Info("service account key cached for session", zap.String("principal", key.ClientEmail))
		return key, true, nil
	}
	return key, false, nil
}

// appendLog writes the durable submission record. Failures are reduced to a
// warning string: visibility of history degrades, the submission stands.
func (s *Service) appendLog(ctx context.Context, in SubmitInput, operationName string) string {
	if s.log == nil {
		s.logger.Debug("submission log not configured; skipping append")
		return ""
	}
	if _, err := s.log.Append(ctx, in.ProjectID, in.URI, in.ThreatTypes, operationName); err != nil {
		s.logger.Warn("submission log append failed", zap.Error(err))
		return fmt.Sprintf("submission succeeded but could not be logged: %v", err)
	}
	return ""
}
