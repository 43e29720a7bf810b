package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/skycast/server/pkg/types"
)

type Client struct {
	fs *firestore.Client
}

func NewClient(client *firestore.Client) *Client {
	return &Client{fs: client}
}

func (c *Client) Close() error {
	return c.fs.Close()
}

func (c *Client) Accounts() *Collection[types.Account] {
	return &Collection[types.Account]{
		Ref:           c.fs.Collection("accounts"),
		ToFirestore:   AccountToFirestore,
		FromFirestore: FirestoreToAccount,
	}
}

// Executions is the root-level processing ledger: executions/{id}.
// Records carry owner_id as a field so they survive account deletion.
func (c *Client) Executions() *Collection[types.ExecutionRecord] {
	return &Collection[types.ExecutionRecord]{
		Ref:           c.fs.Collection("executions"),
		ToFirestore:   ExecutionToFirestore,
		FromFirestore: FirestoreToExecution,
	}
}

// FindAccountByAthleteID queries accounts by the Strava athlete id.
// Returns (nil, nil) when no account matches.
func (c *Client) FindAccountByAthleteID(ctx context.Context, athleteID int64) (*types.Account, error) {
	iter := c.fs.Collection("accounts").Where("athlete_id", "==", athleteID).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	account := FirestoreToAccount(snap.Data())
	account.UserID = snap.Ref.ID
	return account, nil
}
