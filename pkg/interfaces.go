package shared

import (
	"context"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/skycast/server/pkg/types"
)

// --- Persistence Interfaces ---

type Database interface {
	// Accounts
	GetAccount(ctx context.Context, id string) (*types.Account, error)
	GetAccountByAthleteID(ctx context.Context, athleteID int64) (*types.Account, error)
	UpdateAccount(ctx context.Context, id string, data map[string]interface{}) error
	DeleteAccount(ctx context.Context, id string) error

	// Execution ledger
	SetExecution(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error
}

// --- Messaging Interfaces ---

type Publisher interface {
	PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error)
}
