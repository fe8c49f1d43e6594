package db

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wx-shi/memo-wallet/internal/config"
	"github.com/wx-shi/memo-wallet/internal/model"
	"go.uber.org/zap"
)

var backends = []string{"file", "badger", "leveldb"}

func openStore(t *testing.T, backend, dir string) Store {
	t.Helper()
	s, err := Open(&config.StoreConfig{Backend: backend, Directory: dir}, zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	identity := &model.WalletIdentity{
		Mnemonic:      "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
		CashAddress:   "bchtest:qpm2qsznhks23z7629mms6s4cwef74vcwvqcw003ap",
		LegacyAddress: "mrLC19Je2BuWQDkWSTriGYPyQJXKkkBmCx",
		WIF:           "cNJv4XZnkVuxyNV4cRMXkmUKiqbsvy2Fu5XdbZLXTfAMR6ELkRhK",
	}

	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			dir := t.TempDir()
			s := openStore(t, backend, dir)

			st, err := s.Status(model.KindIdentity)
			require.NoError(t, err)
			require.Equal(t, model.NotStarted, st.Status)

			_, err = s.Load(model.KindIdentity)
			require.ErrorIs(t, err, model.ErrNotFound)
			require.ErrorIs(t, err, model.ErrStorage)

			require.NoError(t, SaveJSON(s, model.KindIdentity, identity))
			saved, err := s.Load(model.KindIdentity)
			require.NoError(t, err)

			st, err = s.Status(model.KindIdentity)
			require.NoError(t, err)
			require.Equal(t, model.Completed, st.Status)
			require.False(t, st.UpdatedAt.IsZero())

			// other kinds are independent
			ok, err := s.Exists(model.KindMemo)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, s.Close())

			// reopen: the record survives byte for byte
			s = openStore(t, backend, dir)
			defer s.Close()

			loaded, err := s.Load(model.KindIdentity)
			require.NoError(t, err)
			require.Equal(t, saved, loaded)

			var got model.WalletIdentity
			require.NoError(t, LoadJSON(s, model.KindIdentity, &got))
			require.Equal(t, *identity, got)
		})
	}
}

func TestStoreOverwriteSnapshot(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend, t.TempDir())
			defer s.Close()

			require.NoError(t, s.Save(model.KindSnapshot, []byte(`{"u":[],"c":[]}`)))
			require.NoError(t, s.Save(model.KindSnapshot, []byte(`{"u":[],"c":[{"addr":"qq"}]}`)))

			data, err := s.Load(model.KindSnapshot)
			require.NoError(t, err)
			require.Equal(t, `{"u":[],"c":[{"addr":"qq"}]}`, string(data))
		})
	}
}

func TestStoreUnknownKind(t *testing.T) {
	for _, backend := range backends {
		t.Run(backend, func(t *testing.T) {
			s := openStore(t, backend, t.TempDir())
			defer s.Close()

			require.ErrorIs(t, s.Save(model.Kind("other"), []byte("x")), model.ErrStorage)
			_, err := s.Status(model.Kind("other"))
			require.ErrorIs(t, err, model.ErrStorage)
		})
	}
}

func TestStates(t *testing.T) {
	s := openStore(t, "file", t.TempDir())
	require.NoError(t, s.Save(model.KindReport, []byte("report")))

	states, err := States(s)
	require.NoError(t, err)
	require.Len(t, states, len(model.Kinds))
	for _, st := range states {
		if st.Kind == model.KindReport {
			require.Equal(t, model.Completed, st.Status)
		} else {
			require.Equal(t, model.NotStarted, st.Status)
		}
	}
}

func TestOpenUnsupportedBackend(t *testing.T) {
	_, err := Open(&config.StoreConfig{Backend: "redis", Directory: t.TempDir()}, zap.NewNop())
	require.ErrorIs(t, err, model.ErrStorage)
}
