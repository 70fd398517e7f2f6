package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrityScan is the task type for the nightly ledger scan.
	TaskLedgerIntegrityScan = "ledger:integrity_scan"
)

// LedgerIntegrityPayload narrows the scan to one organization when OrgID is
// set; empty means all organizations.
type LedgerIntegrityPayload struct {
	OrgID string `json:"orgId,omitempty"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the ledger scan.
func NewLedgerIntegrityTask(payload LedgerIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: marshal ledger integrity payload: %w", err)
	}
	return asynq.NewTask(TaskLedgerIntegrityScan, data), nil
}
