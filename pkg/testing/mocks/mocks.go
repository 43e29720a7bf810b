package mocks

import (
	"context"
	"fmt"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/skycast/server/pkg/types"
)

// --- Mock Database ---
type MockDatabase struct {
	GetAccountFunc            func(ctx context.Context, id string) (*types.Account, error)
	GetAccountByAthleteIDFunc func(ctx context.Context, athleteID int64) (*types.Account, error)
	UpdateAccountFunc         func(ctx context.Context, id string, data map[string]interface{}) error
	DeleteAccountFunc         func(ctx context.Context, id string) error
	SetExecutionFunc          func(ctx context.Context, record *types.ExecutionRecord) error
	UpdateExecutionFunc       func(ctx context.Context, id string, data map[string]interface{}) error
}

func (m *MockDatabase) GetAccount(ctx context.Context, id string) (*types.Account, error) {
	if m.GetAccountFunc != nil {
		return m.GetAccountFunc(ctx, id)
	}
	return nil, fmt.Errorf("account not found")
}
func (m *MockDatabase) GetAccountByAthleteID(ctx context.Context, athleteID int64) (*types.Account, error) {
	if m.GetAccountByAthleteIDFunc != nil {
		return m.GetAccountByAthleteIDFunc(ctx, athleteID)
	}
	return nil, nil
}
func (m *MockDatabase) UpdateAccount(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateAccountFunc != nil {
		return m.UpdateAccountFunc(ctx, id, data)
	}
	return nil
}
func (m *MockDatabase) DeleteAccount(ctx context.Context, id string) error {
	if m.DeleteAccountFunc != nil {
		return m.DeleteAccountFunc(ctx, id)
	}
	return nil
}
func (m *MockDatabase) SetExecution(ctx context.Context, record *types.ExecutionRecord) error {
	if m.SetExecutionFunc != nil {
		return m.SetExecutionFunc(ctx, record)
	}
	return nil
}
func (m *MockDatabase) UpdateExecution(ctx context.Context, id string, data map[string]interface{}) error {
	if m.UpdateExecutionFunc != nil {
		return m.UpdateExecutionFunc(ctx, id, data)
	}
	return nil
}

// --- Mock Publisher ---
type MockPublisher struct {
	PublishCloudEventFunc func(ctx context.Context, topic string, e event.Event) (string, error)
}

func (m *MockPublisher) PublishCloudEvent(ctx context.Context, topic string, e event.Event) (string, error) {
	if m.PublishCloudEventFunc != nil {
		return m.PublishCloudEventFunc(ctx, topic, e)
	}
	return "msg-id", nil
}
