package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	storage "github.com/skycast/server/pkg/storage/firestore"
	"github.com/skycast/server/pkg/types"
)

// FirestoreAdapter provides database operations using Firestore
// It wraps our typed storage client
type FirestoreAdapter struct {
	Client  *firestore.Client
	storage *storage.Client // internal typed wrapper
}

func NewFirestoreAdapter(client *firestore.Client) *FirestoreAdapter {
	return &FirestoreAdapter{
		Client:  client,
		storage: storage.NewClient(client),
	}
}

func (a *FirestoreAdapter) GetAccount(ctx context.Context, id string) (*types.Account, error) {
	account, err := a.storage.Accounts().Doc(id).Get(ctx)
	if err != nil {
		return nil, err
	}
	account.UserID = id
	return account, nil
}

func (a *FirestoreAdapter) GetAccountByAthleteID(ctx context.Context, athleteID int64) (*types.Account, error) {
	return a.storage.FindAccountByAthleteID(ctx, athleteID)
}

func (a *FirestoreAdapter) UpdateAccount(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.Accounts().Doc(id).Update(ctx, data)
}

// DeleteAccount removes the account document and its execution sub-collection
// documents are left to TTL cleanup; preference data lives on the account
// document itself so the cascade is a single delete.
func (a *FirestoreAdapter) DeleteAccount(ctx context.Context, id string) error {
	if err := a.storage.Accounts().Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	return nil
}

func (a *FirestoreAdapter) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	return a.storage.Executions().Doc(record.ExecutionID).Set(ctx, record)
}

func (a *FirestoreAdapter) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	return a.storage.Executions().Doc(id).Update(ctx, data)
}
