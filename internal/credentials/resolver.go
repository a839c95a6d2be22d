// Package credentials resolves the service-account key used for
// bearer-authenticated API calls. A key arrives either as an upload on the
// current request or from the session cache; an uploaded key always wins and
// replaces whatever was cached.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauthjwt "golang.org/x/oauth2/jwt"
)

// cloudPlatformScope is the OAuth scope requested for every minted token.
const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Sentinel errors for credential resolution.
var (
	ErrMissingKey   = errors.New("a service account key is required: upload one or reuse a cached key")
	ErrMalformedKey = errors.New("invalid service account key")
)

// ExchangeError wraps a failure to exchange a structurally valid key for a
// bearer token. Distinct from ErrMalformedKey so callers can tell "bad file"
// from "identity provider rejected the key".
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Source records where a resolved key came from.
type Source int

const (
	SourceUploaded Source = iota
	SourceCached
)

// Key is a parsed service-account key held in session memory. It is never
// written to durable storage.
type Key struct {
	// Raw is the verbatim uploaded key JSON.
	Raw []byte
	// ClientEmail identifies the service-account principal.
	ClientEmail string

	conf *oauthjwt.Config
}

// Parse validates blob as a service-account key structure. The key material
// itself is not verified here; that happens at token-exchange time.
func Parse(blob []byte) (*Key, error) {
	conf, err := google.JWTConfigFromJSON(blob, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedKey, err.Error())
	}
	if conf.Email == "" {
		return nil, fmt.Errorf("%w: missing client_email", ErrMalformedKey)
	}
	return &Key{Raw: blob, ClientEmail: conf.Email, conf: conf}, nil
}

// Resolve applies the key precedence rule: a non-empty uploaded blob wins and
// is parsed fresh; otherwise a cached key is reused as-is; otherwise the
// operation cannot proceed. The caller is responsible for caching an uploaded
// key into the session when Source is SourceUploaded.
func Resolve(uploaded []byte, cached *Key) (*Key, Source, error) {
	if len(uploaded) > 0 {
		key, err := Parse(uploaded)
		if err != nil {
			return nil, SourceUploaded, err
		}
		return key, SourceUploaded, nil
	}
	if cached != nil {
		return cached, SourceCached, nil
	}
	return nil, SourceCached, ErrMissingKey
}

// Exchange mints a bearer token for the key and returns an *http.Client that
// attaches it to every request. The initial token fetch happens here so an
// exchange failure surfaces before any API call is attempted.
func Exchange(ctx context.Context, key *Key) (*http.Client, error) {
	conf := key.conf
	if conf == nil {
		// Key built without Parse (e.g. restored from raw bytes).
		parsed, err := Parse(key.Raw)
		if err != nil {
			return nil, err
		}
		conf = parsed.conf
	}
	ts := conf.TokenSource(ctx)
	if _, err := ts.Token(); err != nil {
		return nil, &ExchangeError{Err: err}
	}
	return oauth2.NewClient(ctx, ts), nil
}
