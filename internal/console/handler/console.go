// Package handler is the HTTP boundary of the console: request parsing,
// session cookie plumbing, and outcome rendering. All decision logic lives in
// package console.
package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/urivet/urivet/internal/console"
	"github.com/urivet/urivet/internal/credentials"
	"github.com/urivet/urivet/internal/risk"
	"github.com/urivet/urivet/internal/session"
	"github.com/urivet/urivet/internal/webrisk"
	"go.uber.org/zap"
)

// SessionCookie is the name of the signed session token cookie.
const SessionCookie = "urivet_session"

// stateKey is the gin context key holding the request's *session.State.
const stateKey = "session_state"

// maxKeyUpload bounds the accepted size of an uploaded service-account key.
const maxKeyUpload = 64 << 10

// ConsoleHandler handles the console HTTP routes.
type ConsoleHandler struct {
	svc    *console.Service
	store  *session.Store
	logger *zap.Logger
}

// NewConsoleHandler creates a ConsoleHandler.
func NewConsoleHandler(svc *console.Service, store *session.Store, logger *zap.Logger) *ConsoleHandler {
	return &ConsoleHandler{svc: svc, store: store, logger: logger}
}

// Register mounts the console routes. The session middleware runs on every
// route so each request carries live session state.
func (h *ConsoleHandler) Register(r *gin.Engine) {
	r.Use(h.sessionMiddleware())
	r.GET("/", h.Index)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/lookup", h.Lookup)
		v1.POST("/evaluate", h.Evaluate)
		v1.POST("/submissions", h.Submit)
		v1.POST("/operations/check", h.CheckStatus)
		v1.DELETE("/session/key", h.ClearCachedKey)
	}
}

// sessionMiddleware resolves the session cookie to server-side state, issuing
// a fresh session (and cookie) when the token is absent or invalid.
func (h *ConsoleHandler) sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, err := c.Cookie(SessionCookie); err == nil {
			if state, err := h.store.Get(token); err == nil {
				c.Set(stateKey, state)
				c.Next()
				return
			}
		}

		token, state, err := h.store.Issue()
		if err != nil {
			h.logger.Error("issue session", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "could not start a session"})
			return
		}
		c.SetCookie(SessionCookie, token, 0, "/", "", false, true)
		c.Set(stateKey, state)
		c.Next()
	}
}

func (h *ConsoleHandler) state(c *gin.Context) *session.State {
	return c.MustGet(stateKey).(*session.State)
}

// Index handles GET /, a snapshot of everything the console page renders:
// session histories, recent durable submissions, and the allowed submission
// threat types.
func (h *ConsoleHandler) Index(c *gin.Context) {
	state := h.state(c)
	state.Lock()
	lookups := state.Lookups.Snapshot()
	scans := state.Scans.Snapshot()
	keyCached := state.Key != nil
	lastAction := state.LastAction
	lastResponse := state.LastResponse
	state.Unlock()

	records, degraded := h.svc.RecentSubmissions(c.Request.Context(), console.RecentSubmissionsLimit)

	c.JSON(http.StatusOK, gin.H{
		"submission_threat_types": webrisk.SubmissionThreatTypes,
		"submissions":             records,
		"submissions_degraded":    degraded,
		"lookup_history":          lookups,
		"scan_history":            scans,
		"key_cached":              keyCached,
		"last_action":             lastAction,
		"last_response":           lastResponse,
	})
}

// Lookup handles POST /api/v1/lookup with form fields api_key and uri.
func (h *ConsoleHandler) Lookup(c *gin.Context) {
	state := h.state(c)
	state.Lock()
	defer state.Unlock()

	result, err := h.svc.Lookup(c.Request.Context(), state, c.PostForm("api_key"), c.PostForm("uri"))
	recordOperation("lookup", err)
	if err != nil {
		h.writeError(c, "lookup", err)
		return
	}

	message := "Lookup complete: no threat found."
	if result.ThreatFound {
		message = "Lookup complete: threat found."
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "result": result})
}

// Evaluate handles POST /api/v1/evaluate with form fields api_key and uri.
func (h *ConsoleHandler) Evaluate(c *gin.Context) {
	state := h.state(c)
	state.Lock()
	defer state.Unlock()

	eval, err := h.svc.Evaluate(c.Request.Context(), state, c.PostForm("api_key"), c.PostForm("uri"))
	recordOperation("evaluate", err)
	if err != nil {
		h.writeError(c, "evaluate", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Evaluation successful.", "result": eval})
}

// Submit handles POST /api/v1/submissions as a multipart form: project_id,
// uri, repeated threat_types, and an optional service_account_key file.
func (h *ConsoleHandler) Submit(c *gin.Context) {
	uploaded, err := h.readKeyUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state := h.state(c)
	state.Lock()
	defer state.Unlock()

	result, err := h.svc.Submit(c.Request.Context(), state, console.SubmitInput{
		ProjectID:   c.PostForm("project_id"),
		URI:         c.PostForm("uri"),
		ThreatTypes: c.PostFormArray("threat_types"),
		UploadedKey: uploaded,
	})
	recordOperation("submit", err)
	if err != nil {
		h.writeError(c, "submit", err)
		return
	}

	resp := gin.H{
		"message": "Submission successful. Operation: " + result.OperationName,
		"result":  result,
	}
	if result.Warning != "" {
		resp["warning"] = result.Warning
	}
	c.JSON(http.StatusOK, resp)
}

// CheckStatus handles POST /api/v1/operations/check as a multipart form:
// project_id, operation_id, and an optional service_account_key file.
func (h *ConsoleHandler) CheckStatus(c *gin.Context) {
	uploaded, err := h.readKeyUpload(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state := h.state(c)
	state.Lock()
	defer state.Unlock()

	result, err := h.svc.CheckStatus(c.Request.Context(), state, console.CheckStatusInput{
		ProjectID:   c.PostForm("project_id"),
		OperationID: c.PostForm("operation_id"),
		UploadedKey: uploaded,
	})
	recordOperation("check_status", err)
	if err != nil {
		h.writeError(c, "check_status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Operation status retrieved successfully.",
		"result":  result,
	})
}

// ClearCachedKey handles DELETE /api/v1/session/key.
func (h *ConsoleHandler) ClearCachedKey(c *gin.Context) {
	state := h.state(c)
	state.Lock()
	had := state.ClearKey()
	state.Unlock()

	if !had {
		c.JSON(http.StatusOK, gin.H{"message": "No cached service account key."})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cached service account key has been cleared."})
}

// readKeyUpload reads the optional service_account_key file from a multipart
// form. Absence is not an error; the resolver falls back to the session cache.
func (h *ConsoleHandler) readKeyUpload(c *gin.Context) ([]byte, error) {
	fh, err := c.FormFile("service_account_key")
	if err != nil {
		return nil, nil // no file attached
	}
	f, err := fh.Open()
	if err != nil {
		return nil, errors.New("could not read uploaded key file")
	}
	defer f.Close()

	blob, err := io.ReadAll(io.LimitReader(f, maxKeyUpload))
	if err != nil {
		return nil, errors.New("could not read uploaded key file")
	}
	return blob, nil
}

// writeError maps a classified workflow error to an HTTP response.
func (h *ConsoleHandler) writeError(c *gin.Context, op string, err error) {
	var apiErr *webrisk.APIError
	var exchErr *credentials.ExchangeError

	switch {
	case errors.Is(err, console.ErrValidation),
		errors.Is(err, credentials.ErrMissingKey),
		errors.Is(err, credentials.ErrMalformedKey):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

	case errors.As(err, &apiErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":           "API request failed",
			"upstream_status": apiErr.StatusCode,
			"upstream_body":   apiErr.Body,
		})

	case errors.As(err, &exchErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

	case errors.Is(err, risk.ErrUnparsable):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "could not parse a valid evaluation from the API response",
		})

	default:
		h.logger.Error("console operation failed", zap.String("operation", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "an unexpected error occurred"})
	}
}
