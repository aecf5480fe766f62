package qdrant

import (
	"context"
	"net"
	"sync"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/efebarandurmaz/ragline/internal/vector"
)

// fakeQdrant is the state behind an in-process Qdrant gRPC server. The
// collections and points services are separate types because their method
// sets overlap.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*pb.CreateCollection
	points      map[string]*pb.PointStruct
	apiKeys     []string
}

func (f *fakeQdrant) seenKey(ctx context.Context) {
	md, _ := metadata.FromIncomingContext(ctx)
	f.mu.Lock()
	f.apiKeys = append(f.apiKeys, md.Get("api-key")...)
	f.mu.Unlock()
}

type fakeCollections struct {
	pb.UnimplementedCollectionsServer
	*fakeQdrant
}

type fakePoints struct {
	pb.UnimplementedPointsServer
	*fakeQdrant
}

func (f fakeCollections) List(ctx context.Context, _ *pb.ListCollectionsRequest) (*pb.ListCollectionsResponse, error) {
	f.seenKey(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &pb.ListCollectionsResponse{}
	for name := range f.collections {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (f fakeCollections) Create(ctx context.Context, req *pb.CreateCollection) (*pb.CollectionOperationResponse, error) {
	f.seenKey(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[req.GetCollectionName()]; ok {
		return nil, status.Error(codes.AlreadyExists, "exists")
	}
	f.collections[req.GetCollectionName()] = req
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func (f fakeCollections) Get(ctx context.Context, req *pb.GetCollectionInfoRequest) (*pb.GetCollectionInfoResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.collections[req.GetCollectionName()]; !ok {
		return nil, status.Error(codes.NotFound, "no such collection")
	}
	return &pb.GetCollectionInfoResponse{}, nil
}

func (f fakePoints) Upsert(ctx context.Context, req *pb.UpsertPoints) (*pb.PointsOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range req.GetPoints() {
		f.points[p.GetId().GetUuid()] = p
	}
	return &pb.PointsOperationResponse{}, nil
}

func (f fakePoints) Search(ctx context.Context, req *pb.SearchPoints) (*pb.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := &pb.SearchResponse{}
	for _, p := range f.points {
		if uint64(len(resp.Result)) >= req.GetLimit() {
			break
		}
		resp.Result = append(resp.Result, &pb.ScoredPoint{Id: p.GetId(), Payload: p.GetPayload(), Score: 0.87})
	}
	return resp, nil
}

func startFake(t *testing.T, ep vector.Endpoint) (*fakeQdrant, *Client) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	fake := &fakeQdrant{
		collections: make(map[string]*pb.CreateCollection),
		points:      make(map[string]*pb.PointStruct),
	}
	pb.RegisterCollectionsServer(srv, fakeCollections{fakeQdrant: fake})
	pb.RegisterPointsServer(srv, fakePoints{fakeQdrant: fake})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	opts := append(dialOptions(ep), grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	conn, err := grpc.NewClient("passthrough:///bufnet", opts...)
	require.NoError(t, err)
	c := NewFromConn(conn)
	t.Cleanup(func() { _ = c.Close() })
	return fake, c
}

func TestClient_CreateListAndGet(t *testing.T) {
	fake, c := startFake(t, vector.Endpoint{Token: "s3cret"})
	ctx := context.Background()

	require.NoError(t, c.CreateIndex(ctx, vector.IndexSpec{
		Name: "kb", Dimension: 384, Space: vector.SpaceCosine, Precision: vector.PrecisionInt8,
	}))

	names, err := c.ListIndexes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kb"}, names)

	req := fake.collections["kb"]
	params := req.GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(384), params.GetSize())
	assert.Equal(t, pb.Distance_Cosine, params.GetDistance())
	assert.Equal(t, pb.QuantizationType_Int8, req.GetQuantizationConfig().GetScalar().GetType())

	_, err = c.GetIndex(ctx, "missing")
	assert.Error(t, err)

	assert.Contains(t, fake.apiKeys, "s3cret")
}

func TestClient_NoTokenSendsNoAPIKey(t *testing.T) {
	fake, c := startFake(t, vector.Endpoint{})

	_, err := c.ListIndexes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fake.apiKeys)
}

func TestCreateRequest_Precision(t *testing.T) {
	f16 := createRequest(vector.IndexSpec{Name: "a", Dimension: 8, Precision: vector.PrecisionFloat16})
	assert.Equal(t, pb.Datatype_Float16, f16.GetVectorsConfig().GetParams().GetDatatype())
	assert.Nil(t, f16.GetQuantizationConfig())

	f32 := createRequest(vector.IndexSpec{Name: "a", Dimension: 8, Precision: vector.PrecisionFloat32})
	assert.Nil(t, f32.GetQuantizationConfig())
	assert.Nil(t, f32.GetVectorsConfig().GetParams().Datatype)
}

func TestCollection_UpsertAndQueryRoundTrip(t *testing.T) {
	_, c := startFake(t, vector.Endpoint{})
	ctx := context.Background()
	require.NoError(t, c.CreateIndex(ctx, vector.IndexSpec{Name: "kb", Dimension: 2}))

	idx, err := c.GetIndex(ctx, "kb")
	require.NoError(t, err)

	require.NoError(t, idx.Upsert(ctx, []vector.Record{{
		ID:     "doc_0_0a1b2c3d",
		Vector: []float32{0.6, 0.8},
		Meta:   map[string]any{"text": "hello", "doc_id": "doc", "chunk_index": 0},
	}}))

	matches, err := idx.Query(ctx, []float32{0.6, 0.8}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	assert.Equal(t, "doc_0_0a1b2c3d", matches[0].ID)
	assert.InDelta(t, 0.87, matches[0].Similarity.(float32), 1e-6)
	assert.Equal(t, map[string]any{"text": "hello", "doc_id": "doc", "chunk_index": int64(0)}, matches[0].Meta)
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("a_0_ffffffff"), PointID("a_0_ffffffff"))
	assert.NotEqual(t, PointID("a_0_ffffffff"), PointID("a_1_ffffffff"))
	assert.Len(t, PointID("x"), 36)
}

func TestToMatch_WithoutRecordID(t *testing.T) {
	m := toMatch(&pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: 42}},
		Score: 0.5,
	})
	assert.Equal(t, uint64(42), m.ID)
	assert.Equal(t, map[string]any{}, m.Meta)
}
