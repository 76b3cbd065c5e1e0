// Package storage persists chunk vectors in Qdrant and serves the two search
// legs of hybrid retrieval: dense similarity and lexical full-text filtering.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

const denseVectorName = "content"

// QdrantStorage wraps the Qdrant client with connection management and
// health checks.
type QdrantStorage struct {
	client     *qdrant.Client
	collection string
	dimension  int
}

// NewQdrantStorage creates a Qdrant client and validates connectivity with a
// retried health check, failing fast if the server is unreachable.
func NewQdrantStorage(host string, port int, collection string, dimension int) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStorage{
		client:     client,
		collection: collection,
		dimension:  dimension,
	}

	if err := s.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnreachable, err)
	}

	return s, nil
}

// healthCheckWithRetry retries the health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the chunk collection and its payload indexes if
// missing. Idempotent.
func (s *QdrantStorage) EnsureCollection(ctx context.Context) error {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == s.collection {
			return nil
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			denseVectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	if err := s.createPayloadIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create payload indexes: %w", err)
	}
	return nil
}

// createPayloadIndexes indexes the filterable fields. Without these,
// filtered scrolls degrade badly on large corpora.
func (s *QdrantStorage) createPayloadIndexes(ctx context.Context) error {
	for _, field := range []string{"document_id", "source_path", "language"} {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collection,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}

	// Full-text index on chunk text backs the lexical search leg.
	_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: s.collection,
		FieldName:      "text",
		FieldType:      qdrant.FieldType_FieldTypeText.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create text index: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// upsertWithRetry performs an upsert with exponential backoff.
func (s *QdrantStorage) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// UpsertChunks stores chunk points, batched in groups of 100. Dimensions are
// validated before anything is written so a bad batch leaves no partial state.
func (s *QdrantStorage) UpsertChunks(ctx context.Context, chunks []*ChunkPoint) error {
	if len(chunks) == 0 {
		return nil
	}

	for i, chunk := range chunks {
		if len(chunk.Embedding) != s.dimension {
			return fmt.Errorf("%w: chunk %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(chunk.Embedding), s.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(chunks); i += batchSize {
		end := min(i+batchSize, len(chunks))
		batch := chunks[i:end]
		points := make([]*qdrant.PointStruct, len(batch))

		for j, chunk := range batch {
			points[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(chunk.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					denseVectorName: qdrant.NewVector(chunk.Embedding...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"document_id": chunk.DocumentID,
					"ordinal":     int64(chunk.Ordinal),
					"text":        chunk.Text,
					"source_path": chunk.SourcePath,
					"language":    chunk.Language,
					"ingested_at": chunk.IngestedAt.Format(time.RFC3339),
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// SearchDense runs cosine similarity search against the dense vector.
// Scores come back in [0,1] for cosine distance.
func (s *QdrantStorage) SearchDense(ctx context.Context, embedding []float32, limit int) ([]*ScoredChunk, error) {
	if len(embedding) != s.dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, expected %d",
			ErrDimensionMismatch, len(embedding), s.dimension)
	}

	vectorName := denseVectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(embedding...),
		Using:          &vectorName,
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("dense search: %w", err)
	}

	scored := make([]*ScoredChunk, 0, len(results))
	for _, result := range results {
		scored = append(scored, &ScoredChunk{
			Chunk: chunkFromPayload(result.Id.GetUuid(), result.Payload),
			Score: float64(result.Score),
		})
	}
	return scored, nil
}

// SearchLexical scrolls points whose text matches the query terms via the
// full-text index. Qdrant's text match has no score, so results come back
// unscored; the retriever assigns lexical scores client-side.
func (s *QdrantStorage) SearchLexical(ctx context.Context, query string, limit int) ([]*ChunkPoint, error) {
	results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: s.collection,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatchText("text", query),
			},
		},
		Limit:       qdrant.PtrOf(uint32(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	chunks := make([]*ChunkPoint, 0, len(results))
	for _, result := range results {
		chunks = append(chunks, chunkFromPayload(result.Id.GetUuid(), result.Payload))
	}
	return chunks, nil
}

// GetChunk retrieves one chunk by ID. Returns ErrChunkNotFound if absent.
func (s *QdrantStorage) GetChunk(ctx context.Context, id string) (*ChunkPoint, error) {
	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chunk: %w", err)
	}
	if len(result) == 0 {
		return nil, ErrChunkNotFound
	}
	return chunkFromPayload(result[0].Id.GetUuid(), result[0].Payload), nil
}

// DeleteByDocument removes every chunk point belonging to a document.
// Used both for ingestion rollback and for purging superseded versions.
func (s *QdrantStorage) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("document_id", documentID),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunks for document %s: %w", documentID, err)
	}
	return nil
}

// CountPoints returns the total number of points in the collection.
func (s *QdrantStorage) CountPoints(ctx context.Context) (uint64, error) {
	collection, err := s.client.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}
	return collection.GetPointsCount(), nil
}

func chunkFromPayload(id string, payload map[string]*qdrant.Value) *ChunkPoint {
	ingestedAt, err := time.Parse(time.RFC3339, payload["ingested_at"].GetStringValue())
	if err != nil {
		ingestedAt = time.Time{}
	}
	return &ChunkPoint{
		ID:         id,
		DocumentID: payload["document_id"].GetStringValue(),
		Ordinal:    int(payload["ordinal"].GetIntegerValue()),
		Text:       payload["text"].GetStringValue(),
		SourcePath: payload["source_path"].GetStringValue(),
		Language:   payload["language"].GetStringValue(),
		IngestedAt: ingestedAt,
	}
}
