package db

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const (
	// The store holds four small records, so the defaults are sized for a
	// few kilobytes rather than an index.

	// DefaultMemTableSize is 8 MB.
	DefaultMemTableSize = 8 << 20

	// DefaultLogValueSize is 16 MB.
	DefaultLogValueSize = 16 << 20

	// DefaultBlockCacheSize is 8 MB.
	DefaultBlockCacheSize = 8 << 20

	// DefaultCompressionMode is the default block compression setting.
	DefaultCompressionMode = options.None
)

// DefaultBadgerOptions returns badger options for the workflow state store.
func DefaultBadgerOptions(dir string) badger.Options {
	return badger.DefaultOptions(dir).
		WithMemTableSize(DefaultMemTableSize).
		WithValueLogFileSize(DefaultLogValueSize).
		WithBlockCacheSize(DefaultBlockCacheSize).
		WithNumMemtables(1).
		WithNumLevelZeroTables(1).
		WithNumLevelZeroTablesStall(2).
		WithCompactL0OnClose(false).
		WithCompression(DefaultCompressionMode).
		// every record write must be durable before the next stage runs
		WithSyncWrites(true).
		WithLoggingLevel(badger.WARNING)
}
