package risk

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urivet/urivet/internal/webrisk"
)

// ErrUnparsable is returned by Normalize when the upstream payload is not
// valid JSON and no evaluation can be built from it.
var ErrUnparsable = errors.New("evaluation payload is not valid JSON")

// ThreatScore is the per-threat-type line of a normalized evaluation.
type ThreatScore struct {
	Type  string `json:"type"`
	Label string `json:"confidence"` // display form, e.g. "Extremely High"
	Tier  Tier   `json:"tier"`
}

// Evaluation is a display-ready evaluation result. Threats always holds
// exactly one entry per supported evaluate threat type, in canonical order,
// regardless of what the upstream payload contained.
type Evaluation struct {
	URI       string        `json:"uri"`
	ScannedAt time.Time     `json:"scanned_at"`
	Threats   []ThreatScore `json:"threats"`
	HighRisk  bool          `json:"high_risk"`
	RawJSON   string        `json:"raw_json"`
}

// evaluatePayload mirrors the shape of a v1eap1:evaluateUri response body.
type evaluatePayload struct {
	Scores []struct {
		ThreatType      string `json:"threatType"`
		ConfidenceLevel string `json:"confidenceLevel"`
		Confidence      string `json:"confidence"`
	} `json:"scores"`
}

// Normalize builds an Evaluation from a raw evaluate response body.
//
// Threat types missing from the payload default to SAFE rather than being
// treated as errors: the service omits score entries it has nothing to say
// about. Duplicate entries for the same threat type resolve last-write-wins.
func Normalize(uri, raw string) (*Evaluation, error) {
	var payload evaluatePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnparsable, err.Error())
	}

	byType := make(map[string]string)
	for _, score := range payload.Scores {
		if score.ThreatType == "" {
			continue
		}
		confidence := score.ConfidenceLevel
		if confidence == "" {
			confidence = score.Confidence
		}
		if confidence != "" {
			byType[score.ThreatType] = confidence
		}
	}

	eval := &Evaluation{
		URI:       uri,
		ScannedAt: time.Now(),
		Threats:   make([]ThreatScore, 0, len(webrisk.EvaluateThreatTypes)),
		RawJSON:   PrettyJSON(raw),
	}
	for _, threatType := range webrisk.EvaluateThreatTypes {
		confidence, ok := byType[threatType]
		if !ok {
			confidence = "SAFE"
		}
		tier, risky := Classify(confidence)
		if risky {
			eval.HighRisk = true
		}
		eval.Threats = append(eval.Threats, ThreatScore{
			Type:  threatType,
			Label: displayLabel(confidence),
			Tier:  tier,
		})
	}
	return eval, nil
}

// displayLabel formats a raw confidence token for display:
// "EXTREMELY_HIGH" → "Extremely High".
func displayLabel(confidence string) string {
	words := strings.Fields(strings.ReplaceAll(confidence, "_", " "))
	for i, w := range words {
		lower := strings.ToLower(w)
		words[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(words, " ")
}

// PrettyJSON re-indents raw for display, returning it verbatim when the
// input is not valid JSON.
func PrettyJSON(raw string) string {
	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw
	}
	pretty, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return raw
	}
	return string(pretty)
}
