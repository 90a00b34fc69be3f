package records

import (
	"fmt"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stacklok/crmsync/internal/config"
)

// RecordsDir is the sub-directory of the data directory used by the file store
const RecordsDir = "records"

// NewStore creates the Store matching the configured storage type.
// The returned close function releases file locks and is never nil.
func NewStore(cfg *config.Config, pool *pgxpool.Pool) (Store, func() error, error) {
	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		if pool == nil {
			return nil, nil, fmt.Errorf("database pool is required when storage type is database")
		}
		return NewDBStore(pool), func() error { return nil }, nil
	case config.StorageTypeFile:
		store, err := NewFileStore(filepath.Join(cfg.GetDataDir(), RecordsDir))
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
