package embedded

import "ragcore/internal/storage"

// backend bundles the embedded implementations behind storage.Backend.
type backend struct {
	db        *DB
	graph     *GraphStore
	vector    *VectorStore
	kv        *KVStore
	docStatus *DocStatusStore
	cache     *ExtractionCacheStore
}

// Open opens (creating if absent) the single-file SQLite backend at path.
// An empty path opens a shared-cache in-memory database, useful for tests;
// every Open("") in the same process reaches the same database.
func Open(path string) (storage.Backend, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	vs, err := NewVectorStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &backend{
		db:        db,
		graph:     NewGraphStore(db),
		vector:    vs,
		kv:        NewKVStore(db),
		docStatus: NewDocStatusStore(db),
		cache:     NewExtractionCacheStore(db),
	}, nil
}

func (b *backend) Graph() storage.GraphStorage                 { return b.graph }
func (b *backend) Vector() storage.VectorStorage                { return b.vector }
func (b *backend) KV() storage.KVStorage                        { return b.kv }
func (b *backend) DocStatus() storage.DocStatusStorage           { return b.docStatus }
func (b *backend) ExtractionCache() storage.ExtractionCacheStorage { return b.cache }
func (b *backend) Close() error                                  { return b.db.Close() }
