package distributed

import (
	"context"
	"fmt"

	"ragcore/internal/storage"
)

// backend bundles the Postgres implementations behind storage.Backend. The
// vector half is swappable: pgvector by default, or Qdrant when a
// collection DSN is configured (spec.md §4.2 treats both as valid
// "dedicated vector index" choices behind the same VectorStorage
// contract).
type backend struct {
	db        *DB
	graph     *GraphStore
	vector    storage.VectorStorage
	kv        *KVStore
	docStatus *DocStatusStore
	cache     *ExtractionCacheStore
	qdrant    *QdrantVectorStore // non-nil only when Qdrant is the active vector store
}

type Options struct {
	PostgresDSN string
	Dimensions  int
	Metric      string // cosine|l2|ip

	// QdrantDSN, when non-empty, selects Qdrant instead of pgvector for
	// VectorStorage. QdrantCollection is required in that case.
	QdrantDSN        string
	QdrantCollection string
}

func Open(ctx context.Context, opts Options) (storage.Backend, error) {
	db, err := NewDB(ctx, opts.PostgresDSN, opts.Dimensions)
	if err != nil {
		return nil, err
	}
	b := &backend{
		db:        db,
		graph:     NewGraphStore(db),
		kv:        NewKVStore(db),
		docStatus: NewDocStatusStore(db),
		cache:     NewExtractionCacheStore(db),
	}
	if opts.QdrantDSN != "" {
		qv, err := NewQdrantVectorStore(opts.QdrantDSN, opts.QdrantCollection, opts.Dimensions, opts.Metric)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("open qdrant: %w", err)
		}
		b.qdrant = qv
		b.vector = qv
	} else {
		b.vector = NewVectorStore(db, opts.Metric)
	}
	return b, nil
}

func (b *backend) Graph() storage.GraphStorage                 { return b.graph }
func (b *backend) Vector() storage.VectorStorage                { return b.vector }
func (b *backend) KV() storage.KVStorage                        { return b.kv }
func (b *backend) DocStatus() storage.DocStatusStorage           { return b.docStatus }
func (b *backend) ExtractionCache() storage.ExtractionCacheStorage { return b.cache }

func (b *backend) Close() error {
	if b.qdrant != nil {
		_ = b.qdrant.Close()
	}
	return b.db.Close()
}
