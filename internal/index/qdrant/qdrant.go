// Package qdrant mirrors a built index into a Qdrant collection and serves
// searches from it. Each build gets its own collection named after the build
// id, and point ids are chunk ordinals, so the local mapping file stays
// authoritative for chunk records.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"docsearch/internal/domain"
	"docsearch/internal/index"
)

const upsertBatch = 256

type pointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

type collectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

type Store struct {
	conn        *grpc.ClientConn
	points      pointsAPI
	collections collectionsAPI
	base        string
	active      string
}

// New connects to Qdrant at the given gRPC address. Collections are named
// base-<build id>.
func New(addr, base string) (*Store, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		base:        base,
	}, nil
}

// NewWithClients builds a Store over existing clients. Close is a no-op.
func NewWithClients(points pointsAPI, collections collectionsAPI, base string) *Store {
	return &Store{points: points, collections: collections, base: base}
}

// Collection is the collection holding the given build.
func (s *Store) Collection(buildID string) string {
	return s.base + "-" + buildID
}

func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// Publish writes vectors into a fresh collection for buildID, one point per
// ordinal. A failed publish drops the partial collection.
func (s *Store) Publish(ctx context.Context, buildID string, vectors [][]float32, records []domain.ChunkRecord) error {
	if len(vectors) == 0 {
		return fmt.Errorf("qdrant: publish: %w", domain.ErrEmptyCorpus)
	}
	if len(vectors) != len(records) {
		return fmt.Errorf("qdrant: publish: %w: %d vectors, %d records", domain.ErrIndexMismatch, len(vectors), len(records))
	}
	name := s.Collection(buildID)
	if err := s.create(ctx, name, len(vectors[0])); err != nil {
		return err
	}

	wait := true
	for start := 0; start < len(vectors); start += upsertBatch {
		end := min(start+upsertBatch, len(vectors))
		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, point(vectors[i], records[i]))
		}
		if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: name,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			_ = s.drop(ctx, name)
			return fmt.Errorf("qdrant: upsert [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}

// Drop deletes the collection of buildID.
func (s *Store) Drop(ctx context.Context, buildID string) error {
	return s.drop(ctx, s.Collection(buildID))
}

// Prune deletes every collection of earlier builds, keeping keepBuildID.
func (s *Store) Prune(ctx context.Context, keepBuildID string) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	keep := s.Collection(keepBuildID)
	for _, c := range list.GetCollections() {
		name := c.GetName()
		if name == keep || !strings.HasPrefix(name, s.base+"-") {
			continue
		}
		if err := s.drop(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Open selects the collection of buildID for searching after checking that
// it holds exactly count points.
func (s *Store) Open(ctx context.Context, buildID string, count int) error {
	name := s.Collection(buildID)
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: name, Exact: &exact})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("qdrant: open %s: %w: collection missing", name, domain.ErrIndexMismatch)
	}
	if err != nil {
		return fmt.Errorf("qdrant: count %s: %w", name, err)
	}
	if got := resp.GetResult().GetCount(); got != uint64(count) {
		return fmt.Errorf("qdrant: open %s: %w: %d points, mapping has %d records", name, domain.ErrIndexMismatch, got, count)
	}
	s.active = name
	return nil
}

func (s *Store) create(ctx context.Context, name string, dims int) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == name {
			if err := s.drop(ctx, name); err != nil {
				return err
			}
			break
		}
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Dot,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return nil
}

func (s *Store) drop(ctx context.Context, name string) error {
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return fmt.Errorf("qdrant: delete collection %s: %w", name, err)
	}
	return nil
}

// Search returns up to topK hits by inner product.
func (s *Store) Search(ctx context.Context, query []float32, topK int) ([]domain.Hit, error) {
	if s.active == "" {
		return nil, errors.New("qdrant: search: no build opened")
	}
	if topK <= 0 {
		return nil, nil
	}
	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.active,
		Vector:         query,
		Limit:          uint64(topK),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}
	hits := make([]domain.Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = domain.Hit{Ordinal: ordinal(r.GetId()), Score: r.GetScore()}
	}
	return index.Found(hits), nil
}

func ordinal(id *pb.PointId) int {
	if n, ok := id.GetPointIdOptions().(*pb.PointId_Num); ok {
		return int(n.Num)
	}
	return index.NotFound
}

func point(vec []float32, r domain.ChunkRecord) *pb.PointStruct {
	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(r.Ordinal)}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vec}},
		},
		Payload: map[string]*pb.Value{
			"doc_path":   {Kind: &pb.Value_StringValue{StringValue: r.DocPath}},
			"start_line": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.StartLine)}},
			"end_line":   {Kind: &pb.Value_IntegerValue{IntegerValue: int64(r.EndLine)}},
		},
	}
}
