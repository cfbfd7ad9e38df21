package store

import (
	"context"
	"errors"
)

// Collection keys. Each holds a JSON-encoded array under a single key; there
// are no cross-key transactions, so writers read-modify-write whole
// collections.
const (
	KeyEmails      = "emails"
	KeyActivities  = "activities"
	KeyAPIKeys     = "api-keys"
	KeyWebhooks    = "webhooks"
	KeyWebhookLogs = "webhook-logs"
	KeyContacts    = "contacts"
	KeyDeals       = "deals"
	KeyTasks       = "tasks"
)

var ErrNotFound = errors.New("store: key not found")

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}
