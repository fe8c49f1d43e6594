// Package db persists the workflow records (wallet identity, derivation
// report, memo record and indexer snapshot) at fixed, well-known keys.
//
// Every record carries an explicit status next to its data. There is no
// locking: two workflow runs sharing one store directory may both create an
// identity or both post a memo, so a deployment must run a single workflow
// at a time.
package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"go.uber.org/zap"
)

// Store is the workflow state store.
type Store interface {
	// Status reports whether the record of the given kind was completed.
	Status(kind model.Kind) (model.StageState, error)
	// Exists is Status(kind) == Completed.
	Exists(kind model.Kind) (bool, error)
	// Load returns the record data or model.ErrNotFound.
	Load(kind model.Kind) ([]byte, error)
	// Save overwrites the record and marks it Completed.
	Save(kind model.Kind, data []byte) error
	Close() error
}

// stateEntry is the persisted status of one record.
type stateEntry struct {
	Status    model.Status `json:"status"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Open creates the store selected by conf.Backend.
func Open(conf *config.StoreConfig, logger *zap.Logger) (Store, error) {
	switch conf.Backend {
	case "", "file":
		return NewFileStore(conf.Directory, logger)
	case "badger":
		return NewBadgerDB(conf, logger)
	case "leveldb":
		return NewDB(conf, logger)
	}
	return nil, fmt.Errorf("%w: unsupported store backend %q", model.ErrStorage, conf.Backend)
}

// guarded kinds must never be silently overwritten: the identity holds the
// only copy of the mnemonic and the memo record proves a broadcast happened.
func guarded(kind model.Kind) bool {
	return kind == model.KindIdentity || kind == model.KindMemo
}

func validKind(kind model.Kind) error {
	for _, k := range model.Kinds {
		if k == kind {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown record kind %q", model.ErrStorage, kind)
}

// resolveStatus combines the persisted marker with the presence of data.
func resolveStatus(kind model.Kind, entry *stateEntry, hasData bool) (model.StageState, error) {
	state := model.StageState{Kind: kind, Status: model.NotStarted}
	if entry != nil && entry.Status == model.Completed {
		if !hasData {
			return state, fmt.Errorf("%w: %s marked completed but data is missing", model.ErrStorage, kind)
		}
		state.Status = model.Completed
		state.UpdatedAt = entry.UpdatedAt
		return state, nil
	}
	if hasData && guarded(kind) {
		return state, fmt.Errorf("%w (%s)", model.ErrInconsistentState, kind)
	}
	return state, nil
}

func completedEntry() stateEntry {
	return stateEntry{Status: model.Completed, UpdatedAt: time.Now().UTC()}
}

// SaveJSON marshals v and saves it as the record of the given kind.
func SaveJSON(s Store, kind model.Kind, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", model.ErrStorage, kind, err)
	}
	return s.Save(kind, data)
}

// LoadJSON loads the record of the given kind into v.
func LoadJSON(s Store, kind model.Kind, v interface{}) error {
	data, err := s.Load(kind)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", model.ErrStorage, kind, err)
	}
	return nil
}

// States returns the status of every record kind.
func States(s Store) ([]model.StageState, error) {
	states := make([]model.StageState, 0, len(model.Kinds))
	for _, kind := range model.Kinds {
		st, err := s.Status(kind)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, nil
}
