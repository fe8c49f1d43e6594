package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"go.uber.org/zap"
)

const (
	recordKeyPrefix = "r:"
	statusKeyPrefix = "s:"
	badgerDirName   = "badger"
)

// BadgerDB is a wrapper around the badger.DB instance.
type BadgerDB struct {
	*badger.DB
	logger *zap.Logger
}

// NewBadgerDB creates a new BadgerDB instance under conf.Directory.
func NewBadgerDB(conf *config.StoreConfig, logger *zap.Logger) (*BadgerDB, error) {
	db, err := badger.Open(DefaultBadgerOptions(filepath.Join(conf.Directory, badgerDirName)))
	if err != nil {
		return nil, fmt.Errorf("%w: open badger: %v", model.ErrStorage, err)
	}

	return &BadgerDB{
		DB:     db,
		logger: logger,
	}, nil
}

func recordKey(kind model.Kind) []byte {
	return []byte(recordKeyPrefix + string(kind))
}

func statusKey(kind model.Kind) []byte {
	return []byte(statusKeyPrefix + string(kind))
}

func (db *BadgerDB) Status(kind model.Kind) (model.StageState, error) {
	if err := validKind(kind); err != nil {
		return model.StageState{}, err
	}
	var (
		entry   *stateEntry
		hasData bool
	)
	err := db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(statusKey(kind))
		switch {
		case err == nil:
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			entry = &stateEntry{}
			if err := json.Unmarshal(val, entry); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		_, err = txn.Get(recordKey(kind))
		switch {
		case err == nil:
			hasData = true
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return model.StageState{}, fmt.Errorf("%w: status %s: %v", model.ErrStorage, kind, err)
	}
	return resolveStatus(kind, entry, hasData)
}

func (db *BadgerDB) Exists(kind model.Kind) (bool, error) {
	st, err := db.Status(kind)
	if err != nil {
		return false, err
	}
	return st.Status == model.Completed, nil
}

func (db *BadgerDB) Load(kind model.Kind) ([]byte, error) {
	ok, err := db.Exists(kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", model.ErrNotFound, kind)
	}

	var data []byte
	err = db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(recordKey(kind))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", model.ErrStorage, kind, err)
	}
	return data, nil
}

// Save writes the record and its completion marker in one transaction.
func (db *BadgerDB) Save(kind model.Kind, data []byte) error {
	if err := validKind(kind); err != nil {
		return err
	}
	entry, err := json.Marshal(completedEntry())
	if err != nil {
		return fmt.Errorf("%w: marshal status: %v", model.ErrStorage, err)
	}

	if err := db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(kind), data); err != nil {
			return err
		}
		return txn.Set(statusKey(kind), entry)
	}); err != nil {
		return fmt.Errorf("%w: save %s: %v", model.ErrStorage, kind, err)
	}

	db.logger.Debug("BadgerDB::Save", zap.String("kind", string(kind)), zap.Int("size", len(data)))
	return nil
}

func (db *BadgerDB) Close() error {
	if err := db.DB.Sync(); err != nil {
		db.logger.Error("BadgerDB::Sync", zap.Error(err))
	}
	return db.DB.Close()
}
