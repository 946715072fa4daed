package distributed

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// KVStore is the Postgres KVStorage implementation.
type KVStore struct {
	db *DB
}

func NewKVStore(db *DB) *KVStore { return &KVStore{db: db} }

func (k *KVStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := k.db.Pool.QueryRow(ctx, `SELECT v FROM kv WHERE k=$1`, key).Scan(&v)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (k *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := k.db.Pool.Exec(ctx, `INSERT INTO kv(k, v) VALUES($1,$2) ON CONFLICT(k) DO UPDATE SET v=excluded.v`, key, value)
	return err
}

func (k *KVStore) Delete(ctx context.Context, key string) error {
	_, err := k.db.Pool.Exec(ctx, `DELETE FROM kv WHERE k=$1`, key)
	return err
}
