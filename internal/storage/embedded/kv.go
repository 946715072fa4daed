package embedded

import (
	"context"
	"database/sql"
)

// KVStore is the embedded KVStorage implementation, a single key/value
// table shared by any component that needs small keyed blobs outside the
// graph/vector/cache schemas.
type KVStore struct {
	db *DB
}

func NewKVStore(db *DB) *KVStore { return &KVStore{db: db} }

func (k *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := k.db.read.QueryRowContext(ctx, `SELECT v FROM kv WHERE k=?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (k *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.db.write.ExecContext(ctx, `INSERT INTO kv(k, v) VALUES(?,?) ON CONFLICT(k) DO UPDATE SET v=excluded.v`, key, value)
	return err
}

func (k *KVStore) Delete(ctx context.Context, key string) error {
	_, err := k.db.write.ExecContext(ctx, `DELETE FROM kv WHERE k=?`, key)
	return err
}
