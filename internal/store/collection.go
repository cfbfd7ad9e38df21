package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// LoadList decodes the collection stored under key. A missing key is an empty
// collection, not an error.
func LoadList[T any](ctx context.Context, s Store, key string) ([]T, error) {
	raw, err := s.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load %s: %w", key, err)
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return items, nil
}

// SaveList overwrites the whole collection under key. Callers must hold the
// single-writer assumption for the key (see Store).
func SaveList[T any](ctx context.Context, s Store, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Append loads, appends and rewrites a collection in one read-modify-write.
func Append[T any](ctx context.Context, s Store, key string, item T) error {
	items, err := LoadList[T](ctx, s, key)
	if err != nil {
		return err
	}
	return SaveList(ctx, s, key, append(items, item))
}
