// Package execution maintains the processing ledger: one record per
// webhook-triggered run, updated with the terminal outcome. The ledger is
// observability data; failures to write it never fail the run itself.
package execution

import (
	"context"
	"time"

	"github.com/google/uuid"

	shared "github.com/skycast/server/pkg"
	"github.com/skycast/server/pkg/types"
)

// ExecutionOptions carries optional metadata for a new execution record.
type ExecutionOptions struct {
	OwnerID     string
	TriggerType string
}

// LogStart creates a STARTED execution record and returns its id.
func LogStart(ctx context.Context, db shared.Database, service string, opts ExecutionOptions) (string, error) {
	execID := uuid.NewString()

	record := &types.ExecutionRecord{
		ExecutionID: execID,
		Service:     service,
		OwnerID:     opts.OwnerID,
		TriggerType: opts.TriggerType,
		Status:      types.ExecutionStatusStarted,
		StartedAt:   time.Now().UTC(),
	}

	if err := db.SetExecution(ctx, record); err != nil {
		return execID, err
	}
	return execID, nil
}

// LogSuccess marks the execution as finished successfully.
func LogSuccess(ctx context.Context, db shared.Database, execID string, outputs map[string]interface{}) error {
	return db.UpdateExecution(ctx, execID, map[string]interface{}{
		"status":      types.ExecutionStatusSuccess,
		"outputs":     outputs,
		"finished_at": time.Now().UTC(),
	})
}

// LogFailure marks the execution as failed, keeping whatever outputs exist.
func LogFailure(ctx context.Context, db shared.Database, execID string, cause error, outputs map[string]interface{}) error {
	data := map[string]interface{}{
		"status":      types.ExecutionStatusFailure,
		"error":       cause.Error(),
		"finished_at": time.Now().UTC(),
	}
	if outputs != nil {
		data["outputs"] = outputs
	}
	return db.UpdateExecution(ctx, execID, data)
}
