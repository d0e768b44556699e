package memory

import (
	"context"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/gridwise/diagmesh/core"
)

// QdrantTurnStore is a Qdrant-backed TurnVectorStore. Long-term turns
// survive engine restarts; sessions share one collection and are isolated
// by a session_id payload filter.
type QdrantTurnStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
}

// NewQdrantTurnStore connects to Qdrant at the given gRPC address.
func NewQdrantTurnStore(addr, collection string) (*QdrantTurnStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("memory: dial qdrant %s: %w", addr, err)
	}
	return &QdrantTurnStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantTurnStore) Close() error {
	return s.conn.Close()
}

// EnsureCollection creates the collection if it doesn't exist.
func (s *QdrantTurnStore) EnsureCollection(ctx context.Context, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("memory: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
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
		return fmt.Errorf("memory: create collection %s: %w", s.collection, err)
	}
	return nil
}

// Append implements TurnVectorStore.
func (s *QdrantTurnStore) Append(ctx context.Context, sessionID string, turn core.ConversationTurn, vector []float32) error {
	payload := map[string]*pb.Value{
		"session_id": {Kind: &pb.Value_StringValue{StringValue: sessionID}},
		"role":       {Kind: &pb.Value_StringValue{StringValue: string(turn.Role)}},
		"content":    {Kind: &pb.Value_StringValue{StringValue: turn.Content}},
		"timestamp":  {Kind: &pb.Value_StringValue{StringValue: turn.Timestamp.Format(time.RFC3339Nano)}},
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: []*pb.PointStruct{
			{
				Id: &pb.PointId{
					PointIdOptions: &pb.PointId_Uuid{Uuid: core.NewID()},
				},
				Vectors: &pb.Vectors{
					VectorsOptions: &pb.Vectors_Vector{
						Vector: &pb.Vector{Data: vector},
					},
				},
				Payload: payload,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("memory: upsert turn for session %s: %w", sessionID, err)
	}
	return nil
}

// Search implements TurnVectorStore with a k-NN similarity search scoped to
// one session.
func (s *QdrantTurnStore) Search(ctx context.Context, sessionID string, vector []float32, k int) ([]core.ConversationTurn, error) {
	if k <= 0 {
		return nil, nil
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		Filter:         sessionFilter(sessionID),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("memory: search session %s: %w", sessionID, err)
	}

	turns := make([]core.ConversationTurn, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		var turn core.ConversationTurn
		for key, val := range r.GetPayload() {
			switch key {
			case "role":
				turn.Role = core.Role(val.GetStringValue())
			case "content":
				turn.Content = val.GetStringValue()
			case "timestamp":
				if ts, err := time.Parse(time.RFC3339Nano, val.GetStringValue()); err == nil {
					turn.Timestamp = ts
				}
			}
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// DeleteSession implements TurnVectorStore, dropping every point carrying the
// session's id.
func (s *QdrantTurnStore) DeleteSession(ctx context.Context, sessionID string) error {
	wait := true
	_, err := s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Filter{
				Filter: sessionFilter(sessionID),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("memory: delete session %s: %w", sessionID, err)
	}
	return nil
}

func sessionFilter(sessionID string) *pb.Filter {
	return &pb.Filter{
		Must: []*pb.Condition{
			{
				ConditionOneOf: &pb.Condition_Field{
					Field: &pb.FieldCondition{
						Key: "session_id",
						Match: &pb.Match{
							MatchValue: &pb.Match_Keyword{Keyword: sessionID},
						},
					},
				},
			},
		},
	}
}
