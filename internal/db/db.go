package db

import (
	"context"
	"encoding/json"
	"fmt"

	tmdb "github.com/cosmos/cosmos-db"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	rdbName = "records"
	sdbName = "status"
)

// DB is the leveldb backed store: records and statuses live in separate
// databases under the store directory.
type DB struct {
	rdb    tmdb.DB
	sdb    tmdb.DB
	logger *zap.Logger
}

func NewDB(conf *config.StoreConfig, logger *zap.Logger) (*DB, error) {
	rdb, err := tmdb.NewDB(rdbName, tmdb.GoLevelDBBackend, conf.Directory)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", model.ErrStorage, rdbName, err)
	}
	sdb, err := tmdb.NewDB(sdbName, tmdb.GoLevelDBBackend, conf.Directory)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("%w: open %s: %v", model.ErrStorage, sdbName, err)
	}

	return &DB{
		rdb:    rdb,
		sdb:    sdb,
		logger: logger,
	}, nil
}

func (db *DB) Close() error {
	g, _ := errgroup.WithContext(context.Background())
	g.Go(db.rdb.Close)
	g.Go(db.sdb.Close)
	return g.Wait()
}

func (db *DB) Status(kind model.Kind) (model.StageState, error) {
	if err := validKind(kind); err != nil {
		return model.StageState{}, err
	}
	val, err := db.sdb.Get([]byte(kind))
	if err != nil {
		return model.StageState{}, fmt.Errorf("%w: status %s: %v", model.ErrStorage, kind, err)
	}
	var entry *stateEntry
	if len(val) > 0 {
		entry = &stateEntry{}
		if err := json.Unmarshal(val, entry); err != nil {
			return model.StageState{}, fmt.Errorf("%w: parse status %s: %v", model.ErrStorage, kind, err)
		}
	}
	hasData, err := db.rdb.Has([]byte(kind))
	if err != nil {
		return model.StageState{}, fmt.Errorf("%w: status %s: %v", model.ErrStorage, kind, err)
	}
	return resolveStatus(kind, entry, hasData)
}

func (db *DB) Exists(kind model.Kind) (bool, error) {
	st, err := db.Status(kind)
	if err != nil {
		return false, err
	}
	return st.Status == model.Completed, nil
}

func (db *DB) Load(kind model.Kind) ([]byte, error) {
	ok, err := db.Exists(kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", model.ErrNotFound, kind)
	}
	val, err := db.rdb.Get([]byte(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %v", model.ErrStorage, kind, err)
	}
	return val, nil
}

// Save writes the record before the status, same ordering as the file store.
func (db *DB) Save(kind model.Kind, data []byte) error {
	if err := validKind(kind); err != nil {
		return err
	}
	entry, err := json.Marshal(completedEntry())
	if err != nil {
		return fmt.Errorf("%w: marshal status: %v", model.ErrStorage, err)
	}
	if err := db.rdb.SetSync([]byte(kind), data); err != nil {
		return fmt.Errorf("%w: save %s: %v", model.ErrStorage, kind, err)
	}
	if err := db.sdb.SetSync([]byte(kind), entry); err != nil {
		return fmt.Errorf("%w: save status %s: %v", model.ErrStorage, kind, err)
	}

	db.logger.Debug("DB::Save", zap.String("kind", string(kind)), zap.Int("size", len(data)))
	return nil
}
