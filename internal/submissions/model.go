// Package submissions persists a durable record of every successful URI
// submission. The log is append-only: records are never mutated or deleted
// by this system.
package submissions

import (
	"time"

	"github.com/google/uuid"
)

// Record is one logged submission.
type Record struct {
	ID            uuid.UUID `json:"id"`
	SubmittedAt   time.Time `json:"submitted_at"`
	ProjectID     string    `json:"project_id"`
	URI           string    `json:"uri"`
	ThreatTypes   []string  `json:"threat_types"`
	OperationName string    `json:"operation_name"`
}
