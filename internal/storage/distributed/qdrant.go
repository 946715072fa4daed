package distributed

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"ragcore/internal/storage"
)

// payloadProjectField and friends let a single Qdrant collection serve
// every project, filtered at query time rather than one collection per
// tenant (keeps collection count bounded regardless of project count).
const (
	payloadProjectField  = "project_id"
	payloadOwnerTypeField = "owner_type"
	payloadOwnerIDField   = "owner_id"
	payloadDocumentField  = "document_id"
)

// QdrantVectorStore is an alternative VectorStorage for the distributed
// backend, selected by configuration in place of pgvector. Adapted from
// intelligencedev-manifold's qdrant_vector.go: same deterministic
// UUIDv5-from-string point ID mapping, generalized to carry this
// module's project/owner scoping in the point payload instead of a
// generic metadata map.
type QdrantVectorStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	metric     string
}

func NewQdrantVectorStore(dsn, collection string, dimensions int, metric string) (*QdrantVectorStore, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection name is required")
	}
	parsedURL, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsedURL.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in qdrant dsn: %w", err)
	}
	config := &qdrant.Config{Host: host, Port: portNum}
	if parsedURL.Scheme == "https" {
		config.UseTLS = true
	}
	if apiKey := parsedURL.Query().Get("api_key"); apiKey != "" {
		config.APIKey = apiKey
	}
	client, err := qdrant.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	qv := &QdrantVectorStore{client: client, collection: collection, dimension: dimensions, metric: strings.ToLower(strings.TrimSpace(metric))}
	if err := qv.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return qv, nil
}

func (q *QdrantVectorStore) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if exists {
		return nil
	}
	var distance qdrant.Distance
	switch q.metric {
	case "l2", "euclidean":
		distance = qdrant.Distance_Euclid
	case "ip", "dot":
		distance = qdrant.Distance_Dot
	default:
		distance = qdrant.Distance_Cosine
	}
	if q.dimension <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: distance,
		}),
	})
}

func pointID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

func (q *QdrantVectorStore) Upsert(ctx context.Context, e storage.Embedding) error {
	return q.UpsertBatch(ctx, []storage.Embedding{e})
}

func (q *QdrantVectorStore) UpsertBatch(ctx context.Context, es []storage.Embedding) error {
	if len(es) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(es))
	for _, e := range es {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		payload := map[string]any{
			payloadProjectField:   e.ProjectID,
			payloadOwnerTypeField: string(e.OwnerType),
			payloadOwnerIDField:   e.OwnerID,
		}
		if e.DocumentID != "" {
			payload[payloadDocumentField] = e.DocumentID
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID(e.ID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: q.collection, Points: points})
	return err
}

func (q *QdrantVectorStore) Query(ctx context.Context, projectID string, vector []float32, topK int, owner storage.OwnerType) ([]storage.VectorResult, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	must := []*qdrant.Condition{qdrant.NewMatch(payloadProjectField, projectID)}
	if owner != "" {
		must = append(must, qdrant.NewMatch(payloadOwnerTypeField, string(owner)))
	}
	limit := uint64(topK)
	res, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	out := make([]storage.VectorResult, 0, len(res))
	for _, hit := range res {
		ownerID := ""
		if hit.Payload != nil {
			if v, ok := hit.Payload[payloadOwnerIDField]; ok {
				ownerID = v.GetStringValue()
			}
		}
		out = append(out, storage.VectorResult{OwnerID: ownerID, Score: float64(hit.Score)})
	}
	return out, nil
}

func (q *QdrantVectorStore) Delete(ctx context.Context, projectID, ownerID string) error {
	return q.DeleteBatch(ctx, projectID, []string{ownerID})
}

func (q *QdrantVectorStore) DeleteBatch(ctx context.Context, projectID string, ownerIDs []string) error {
	if len(ownerIDs) == 0 {
		return nil
	}
	ids := make([]*qdrant.PointId, 0, len(ownerIDs))
	for _, id := range ownerIDs {
		ids = append(ids, qdrant.NewIDUUID(pointID(id)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points:         qdrant.NewPointsSelector(ids...),
	})
	return err
}

func (q *QdrantVectorStore) DeleteByProject(ctx context.Context, projectID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadProjectField, projectID)},
		}),
	})
	return err
}

func (q *QdrantVectorStore) DeleteEntityEmbeddings(ctx context.Context, projectID string, names []string) error {
	return q.DeleteBatch(ctx, projectID, names)
}

func (q *QdrantVectorStore) HasVectors(ctx context.Context, documentID string) (bool, error) {
	count, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch(payloadDocumentField, documentID)},
		},
	})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *QdrantVectorStore) Close() error { return q.client.Close() }
