package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// Chunk content is small enough, and queried rarely enough relative to
// ingestion writes, that it rides on the generic KVStorage contract
// instead of warranting its own interface (spec.md §9 "prefer the
// smallest storage contract that satisfies every consumer").

func chunkKVKey(chunkID string) string { return "chunk:" + chunkID }

// PutChunk persists a chunk's content so C9's query executors can
// resolve chunk ids returned by vector search back to text.
func PutChunk(ctx context.Context, kv KVStorage, c Chunk) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal chunk %s: %w", c.ID, err)
	}
	return kv.Set(ctx, chunkKVKey(c.ID), b)
}

// GetChunk resolves a chunk id to its persisted content.
func GetChunk(ctx context.Context, kv KVStorage, chunkID string) (Chunk, bool, error) {
	b, ok, err := kv.Get(ctx, chunkKVKey(chunkID))
	if err != nil || !ok {
		return Chunk{}, ok, err
	}
	var c Chunk
	if err := json.Unmarshal(b, &c); err != nil {
		return Chunk{}, false, fmt.Errorf("unmarshal chunk %s: %w", chunkID, err)
	}
	return c, true, nil
}
