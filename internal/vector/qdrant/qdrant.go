// Package qdrant implements the vector store client over Qdrant's gRPC API.
package qdrant

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/efebarandurmaz/ragline/internal/vector"
)

// RecordIDKey is the payload field holding the caller's record id. Qdrant
// only accepts integers and UUIDs as point ids.
const RecordIDKey = "record_id"

// pointNamespace seeds the deterministic point ids derived from record ids.
var pointNamespace = uuid.MustParse("6f1d1c3e-5a8b-4d53-9a3e-2b7c0e9f4a10")

// Client implements vector.Client using Qdrant.
type Client struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
}

// Connect is a vector.Connector for Qdrant.
func Connect(ctx context.Context, ep vector.Endpoint) (vector.Client, error) {
	return New(ep)
}

// New creates a Qdrant client. The connection is established lazily by gRPC.
func New(ep vector.Endpoint) (*Client, error) {
	port := ep.Port
	if port == 0 {
		port = 6334
	}
	addr := fmt.Sprintf("%s:%d", ep.Host, port)

	conn, err := grpc.NewClient(addr, dialOptions(ep)...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return NewFromConn(conn), nil
}

func dialOptions(ep vector.Endpoint) []grpc.DialOption {
	creds := insecure.NewCredentials()
	if ep.TLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if ep.Token != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(ep.Token)))
	}
	return opts
}

// NewFromConn wraps an existing gRPC connection.
func NewFromConn(conn *grpc.ClientConn) *Client {
	return &Client{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
	}
}

func apiKeyInterceptor(token string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", token)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func (c *Client) ListIndexes(ctx context.Context) ([]string, error) {
	resp, err := c.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return nil, fmt.Errorf("qdrant list collections: %w", err)
	}
	names := make([]string, len(resp.GetCollections()))
	for i, col := range resp.GetCollections() {
		names[i] = col.GetName()
	}
	return names, nil
}

func (c *Client) CreateIndex(ctx context.Context, spec vector.IndexSpec) error {
	_, err := c.collections.Create(ctx, createRequest(spec))
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", spec.Name, err)
	}
	return nil
}

func createRequest(spec vector.IndexSpec) *pb.CreateCollection {
	params := &pb.VectorParams{
		Size:     uint64(spec.Dimension),
		Distance: pb.Distance_Cosine,
	}
	req := &pb.CreateCollection{CollectionName: spec.Name}

	switch spec.Precision {
	case vector.PrecisionInt8:
		req.QuantizationConfig = &pb.QuantizationConfig{
			Quantization: &pb.QuantizationConfig_Scalar{
				Scalar: &pb.ScalarQuantization{Type: pb.QuantizationType_Int8},
			},
		}
	case vector.PrecisionFloat16:
		params.Datatype = pb.Datatype_Float16.Enum()
	}

	req.VectorsConfig = &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: params}}
	return req
}

func (c *Client) GetIndex(ctx context.Context, name string) (vector.Index, error) {
	if _, err := c.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err != nil {
		return nil, fmt.Errorf("qdrant get collection %s: %w", name, err)
	}
	return &Collection{points: c.points, name: name}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Collection implements vector.Index for one Qdrant collection.
type Collection struct {
	points pb.PointsClient
	name   string
}

func (col *Collection) Upsert(ctx context.Context, records []vector.Record) error {
	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		payload, err := toPayload(r.Meta)
		if err != nil {
			return fmt.Errorf("qdrant payload for %s: %w", r.ID, err)
		}
		payload[RecordIDKey] = stringValue(r.ID)
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := col.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: col.name,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (col *Collection) Query(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	resp, err := col.points.Search(ctx, &pb.SearchPoints{
		CollectionName: col.name,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	matches := make([]vector.Match, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		matches[i] = toMatch(pt)
	}
	return matches, nil
}

func toMatch(pt *pb.ScoredPoint) vector.Match {
	meta := fromPayload(pt.GetPayload())

	var id any
	if rid, ok := meta[RecordIDKey]; ok {
		id = rid
		delete(meta, RecordIDKey)
	} else if pid := pt.GetId(); pid != nil {
		switch opt := pid.GetPointIdOptions().(type) {
		case *pb.PointId_Uuid:
			id = opt.Uuid
		case *pb.PointId_Num:
			id = opt.Num
		}
	}

	return vector.Match{ID: id, Similarity: pt.GetScore(), Meta: meta}
}

// PointID maps a record id to the UUID Qdrant stores it under.
func PointID(recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(recordID)).String()
}
