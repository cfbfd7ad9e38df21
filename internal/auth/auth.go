package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/model"
	"github.com/Tamerb86/nordiccrm-norsk-salg-sub001/internal/store"
)

// Actions checked against an API key's resource permissions.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)

// ResourceAll is the wildcard resource name in a key's resourcePermissions.
const ResourceAll = "all"

// PermissionAdmin short-circuits every resource check.
const PermissionAdmin = "admin"

var ErrInvalidCredential = errors.New("auth: invalid or inactive credential")

// Evaluator resolves bearer tokens to API keys and answers permission
// questions. It holds no cache: every call re-reads the api-keys collection,
// so a revocation is effective on the next request.
type Evaluator struct {
	store store.Store

	// masterKey is a privileged bootstrap bypass: it authenticates and
	// authorizes unconditionally without a stored key record. Intended for
	// initial setup and operational tooling only.
	masterKey string

	// touchMu serializes the lastUsedAt rewrite: the touch is a whole-
	// collection read-modify-write, so concurrent authentications racing it
	// would resurrect stale key records.
	touchMu sync.Mutex

	now func() time.Time
}

func NewEvaluator(s store.Store, masterKey string) *Evaluator {
	return &Evaluator{store: s, masterKey: masterKey, now: time.Now}
}

// Authenticate resolves token to an active API key and touches its
// lastUsedAt. The master key yields a synthetic admin key that is never
// persisted.
func (e *Evaluator) Authenticate(ctx context.Context, token string) (*model.APIKey, error) {
	if token == "" {
		return nil, ErrInvalidCredential
	}
	if e.masterKey != "" && token == e.masterKey {
		return &model.APIKey{
			ID:          "master",
			Key:         token,
			Permissions: []string{PermissionAdmin},
			IsActive:    true,
		}, nil
	}

	e.touchMu.Lock()
	defer e.touchMu.Unlock()

	keys, err := store.LoadList[model.APIKey](ctx, e.store, store.KeyAPIKeys)
	if err != nil {
		return nil, err
	}

	for i, k := range keys {
		if k.Key != token || !k.IsActive {
			continue
		}

		used := e.now().UTC()
		keys[i].LastUsedAt = &used
		if err := store.SaveList(ctx, e.store, store.KeyAPIKeys, keys); err != nil {
			return nil, err
		}

		hit := keys[i]
		return &hit, nil
	}
	return nil, ErrInvalidCredential
}

// CheckPermission reports whether the credential may perform action on
// resource. State is re-read on every call.
func (e *Evaluator) CheckPermission(ctx context.Context, token, resource, action string) bool {
	if e.masterKey != "" && token == e.masterKey {
		return true
	}

	keys, err := store.LoadList[model.APIKey](ctx, e.store, store.KeyAPIKeys)
	if err != nil {
		return false
	}

	for _, k := range keys {
		if k.Key != token || !k.IsActive {
			continue
		}
		return keyAllows(k, resource, action)
	}
	return false
}

// CheckAdmin reports whether the credential carries the admin permission.
// Operational mutations (scheduler start/stop) gate on this rather than a
// resource scope, so an all-resources write key does not qualify.
func (e *Evaluator) CheckAdmin(ctx context.Context, token string) bool {
	if e.masterKey != "" && token == e.masterKey {
		return true
	}

	keys, err := store.LoadList[model.APIKey](ctx, e.store, store.KeyAPIKeys)
	if err != nil {
		return false
	}

	for _, k := range keys {
		if k.Key != token || !k.IsActive {
			continue
		}
		for _, p := range k.Permissions {
			if p == PermissionAdmin {
				return true
			}
		}
		return false
	}
	return false
}

func keyAllows(k model.APIKey, resource, action string) bool {
	for _, p := range k.Permissions {
		if p == PermissionAdmin {
			return true
		}
	}
	for _, rp := range k.ResourcePermissions {
		if rp.Resource != resource && rp.Resource != ResourceAll {
			continue
		}
		for _, a := range rp.Actions {
			if a == action {
				return true
			}
		}
	}
	return false
}
