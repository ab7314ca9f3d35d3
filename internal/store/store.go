// Package store defines the content store: a keyed cache of generated
// definition sets and realized world instances.
package store

import (
	"context"
	"errors"

	"github.com/tatianab/roguellm/internal/models"
)

// ErrNotFound is returned when no record exists for a key.
var ErrNotFound = errors.New("record not found")

// ContentStore persists definition sets by content hash and realized
// instances by the hash they were built from. Puts are first-writer-wins: a
// put for an existing key is a no-op and reports whether it stored anything.
type ContentStore interface {
	PutDefinitions(ctx context.Context, defs *models.DefinitionSet) (bool, error)
	GetDefinitions(ctx context.Context, hash string) (*models.DefinitionSet, error)

	// PutAlias maps a theme request key to a content hash.
	PutAlias(ctx context.Context, aliasKey, hash string) (bool, error)
	GetAlias(ctx context.Context, aliasKey string) (string, error)

	PutInstance(ctx context.Context, inst *models.Instance) (bool, error)
	GetInstance(ctx context.Context, hash string) (*models.Instance, error)

	Close() error
}

// Notifier is told about every successful write. Backups hook in here.
type Notifier interface {
	Notify()
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func()

func (f NotifierFunc) Notify() { f() }
