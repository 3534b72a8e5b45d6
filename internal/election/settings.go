package election

import (
	"context"
	"fmt"

	"github.com/roach88/ballotdesk/internal/schema"
	"github.com/roach88/ballotdesk/internal/store"
	"github.com/roach88/ballotdesk/internal/value"
)

// Settings is the key/value config collection.
type Settings struct {
	docs Documents
}

// NewSettings returns the settings over docs.
func NewSettings(docs Documents) *Settings {
	return &Settings{docs: docs}
}

// Get returns the value stored under key. ok is false when unset.
func (s *Settings) Get(ctx context.Context, key string) (value.Value, bool, error) {
	doc, ok, err := s.lookup(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	v, ok := doc.Fields["value"]
	return v, ok, nil
}

// Set stores v under key, replacing any previous value.
func (s *Settings) Set(ctx context.Context, key string, v value.Value) error {
	doc, ok, err := s.lookup(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		doc.Fields["value"] = v
		if _, err := s.docs.Update(ctx, schema.Config, doc); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	}

	if _, err := s.docs.Create(ctx, schema.Config, TypeSetting, value.Object{
		"key":   value.String(key),
		"value": v,
	}); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Settings) lookup(ctx context.Context, key string) (store.Document, bool, error) {
	docs, err := s.docs.Find(ctx, schema.Config, store.Query{
		Where: value.Object{"key": value.String(key)},
	})
	if err != nil {
		return store.Document{}, false, fmt.Errorf("get %s: %w", key, err)
	}
	if len(docs) == 0 {
		return store.Document{}, false, nil
	}
	return docs[0], true, nil
}
