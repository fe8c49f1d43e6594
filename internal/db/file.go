package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/wx-shi/memo-wallet/internal/model"
	"go.uber.org/zap"
)

const (
	manifestName = "state.json"
	manifestVer  = 1
)

// fileNames are the fixed record locations inside the store directory.
var fileNames = map[model.Kind]string{
	model.KindIdentity: "wallet.json",
	model.KindReport:   "wallet-info.txt",
	model.KindMemo:     "memo.json",
	model.KindSnapshot: "bitdb.json",
}

type manifest struct {
	Version int                       `json:"version"`
	Records map[model.Kind]stateEntry `json:"records"`
}

// FileStore keeps each record in its own file and the statuses in state.json.
// Data files hold exactly the record bytes, the snapshot is the raw indexer body.
type FileStore struct {
	dir    string
	logger *zap.Logger
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("%w: create store dir: %v", model.ErrStorage, err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Path returns the file backing the given kind.
func (s *FileStore) Path(kind model.Kind) string {
	return filepath.Join(s.dir, fileNames[kind])
}

func (s *FileStore) Status(kind model.Kind) (model.StageState, error) {
	if err := validKind(kind); err != nil {
		return model.StageState{}, err
	}
	m, err := s.readManifest()
	if err != nil {
		return model.StageState{}, err
	}
	hasData, err := fileExists(s.Path(kind))
	if err != nil {
		return model.StageState{}, err
	}
	var entry *stateEntry
	if e, ok := m.Records[kind]; ok {
		entry = &e
	}
	return resolveStatus(kind, entry, hasData)
}

func (s *FileStore) Exists(kind model.Kind) (bool, error) {
	st, err := s.Status(kind)
	if err != nil {
		return false, err
	}
	return st.Status == model.Completed, nil
}

func (s *FileStore) Load(kind model.Kind) ([]byte, error) {
	ok, err := s.Exists(kind)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w (%s)", model.ErrNotFound, kind)
	}
	data, err := os.ReadFile(s.Path(kind))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", model.ErrStorage, kind, err)
	}
	return data, nil
}

// Save writes the data file first and the completion marker second, so a
// crash in between leaves a record that Status reports as inconsistent.
// Both files are replaced atomically and fsynced, readers never see a
// partial record.
func (s *FileStore) Save(kind model.Kind, data []byte) error {
	if err := validKind(kind); err != nil {
		return err
	}
	if err := renameio.WriteFile(s.Path(kind), data, 0600); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrStorage, kind, err)
	}

	m, err := s.readManifest()
	if err != nil {
		return err
	}
	m.Records[kind] = completedEntry()
	if err := s.writeManifest(m); err != nil {
		return err
	}

	s.logger.Debug("FileStore::Save",
		zap.String("kind", string(kind)),
		zap.String("path", s.Path(kind)),
		zap.Int("size", len(data)))
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) readManifest() (*manifest, error) {
	m := &manifest{Version: manifestVer, Records: map[model.Kind]stateEntry{}}
	data, err := os.ReadFile(filepath.Join(s.dir, manifestName))
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", model.ErrStorage, err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: parse manifest: %v", model.ErrStorage, err)
	}
	if m.Version != manifestVer {
		return nil, fmt.Errorf("%w: unsupported manifest version %d", model.ErrStorage, m.Version)
	}
	if m.Records == nil {
		m.Records = map[model.Kind]stateEntry{}
	}
	return m, nil
}

func (s *FileStore) writeManifest(m *manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal manifest: %v", model.ErrStorage, err)
	}
	if err := renameio.WriteFile(filepath.Join(s.dir, manifestName), data, 0600); err != nil {
		return fmt.Errorf("%w: write manifest: %v", model.ErrStorage, err)
	}
	return nil
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %v", model.ErrStorage, path, err)
	}
	return info.Mode().IsRegular(), nil
}
