package index

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gridwise/diagmesh/core"
)

// QdrantIndex is a Qdrant-backed dense index implementing core.VectorIndex.
// It owns the gRPC connection and the collection it searches.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	embedder    core.Embedder
}

// NewQdrantIndex connects to Qdrant at the given gRPC address.
func NewQdrantIndex(addr, collection string, embedder core.Embedder) (*QdrantIndex, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("index: dial qdrant %s: %w", addr, err)
	}
	return &QdrantIndex{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		embedder:    embedder,
	}, nil
}

// Close closes the underlying gRPC connection.
func (i *QdrantIndex) Close() error {
	return i.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (i *QdrantIndex) EnsureCollection(ctx context.Context, dims int) error {
	list, err := i.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("index: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == i.collection {
			return nil
		}
	}

	_, err = i.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: i.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: create collection %s: %w", i.collection, err)
	}
	return nil
}

// Add embeds and upserts documents into the collection.
func (i *QdrantIndex) Add(ctx context.Context, docs ...core.Document) error {
	if len(docs) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(docs))
	for n, doc := range docs {
		vec, err := i.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return fmt.Errorf("index: embed document %s: %w", doc.ID, err)
		}
		payload := map[string]*pb.Value{
			"doc_id":  {Kind: &pb.Value_StringValue{StringValue: doc.ID}},
			"content": {Kind: &pb.Value_StringValue{StringValue: doc.Text}},
		}
		for k, v := range doc.Metadata {
			payload[k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
		}
		points[n] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Uuid{Uuid: core.NewID()},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vec},
				},
			},
			Payload: payload,
		}
	}

	wait := true
	_, err := i.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("index: upsert %d points: %w", len(points), err)
	}
	return nil
}

// DeleteByDocID removes all points matching a doc_id. Used for re-ingestion.
func (i *QdrantIndex) DeleteByDocID(ctx context.Context, docID string) error {
	wait := true
	_, err := i.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: i.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: &pb.Filter{
					Must: []*pb.Condition{
						{
							ConditionOneOf: &pb.Condition_Field{
								Field: &pb.FieldCondition{
									Key: "doc_id",
									Match: &pb.Match{
										MatchValue: &pb.Match_Keyword{Keyword: docID},
									},
								},
							},
						},
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("index: delete by doc_id %s: %w", docID, err)
	}
	return nil
}

// Search implements core.VectorIndex with a k-NN similarity search.
func (i *QdrantIndex) Search(ctx context.Context, query string, limit int) ([]core.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	qv, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}

	resp, err := i.points.Search(ctx, &pb.SearchPoints{
		CollectionName: i.collection,
		Vector:         qv,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}

	candidates := make([]core.Candidate, len(resp.GetResult()))
	for n, r := range resp.GetResult() {
		c := core.Candidate{Score: float64(r.GetScore())}
		for k, val := range r.GetPayload() {
			switch k {
			case "doc_id":
				c.DocumentID = val.GetStringValue()
			case "content":
				c.Text = val.GetStringValue()
			}
		}
		if c.DocumentID == "" {
			c.DocumentID = r.GetId().GetUuid()
		}
		candidates[n] = c
	}
	return candidates, nil
}
