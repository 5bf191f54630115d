// Package qdrant indexes paper embeddings in a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
)

// pointNamespace derives stable point ids for paper ids that are not UUIDs.
var pointNamespace = uuid.MustParse("6f1d7c8e-2b4a-5e39-9c10-7a3b5d2e8f41")

// Config holds the connection settings for a Qdrant instance.
type Config struct {
	// Address is the host:port of the gRPC endpoint, e.g. "localhost:6334".
	Address        string `mapstructure:"address"`
	CollectionName string `mapstructure:"collection"`
	VectorSize     uint64 `mapstructure:"vector_size"`
	APIKey         string `mapstructure:"api_key"`
	UseTLS         bool   `mapstructure:"use_tls"`
}

// Enabled reports whether an address is configured.
func (c Config) Enabled() bool {
	return c.Address != ""
}

// Validate checks that all required fields are set.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("qdrant config: address is required")
	}
	if c.CollectionName == "" {
		return fmt.Errorf("qdrant config: collection name is required")
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("qdrant config: vector size must be > 0")
	}
	return nil
}

// PaperPoint is a paper embedding with the payload stored beside it.
type PaperPoint struct {
	PaperID     string
	CanonicalID string
	Title       string
	Year        int
	Source      string
	Embedding   []float32
}

// PointID returns the Qdrant point id for the paper: the paper id itself
// when it is a UUID, otherwise a name-based UUID derived from it.
func (p PaperPoint) PointID() string {
	if id, err := uuid.Parse(p.PaperID); err == nil {
		return id.String()
	}
	return uuid.NewSHA1(pointNamespace, []byte(p.PaperID)).String()
}

func (p PaperPoint) payload() map[string]*pb.Value {
	return pb.NewValueMap(map[string]any{
		"paper_id":     p.PaperID,
		"canonical_id": p.CanonicalID,
		"title":        p.Title,
		"year":         int64(p.Year),
		"source":       p.Source,
	})
}

// Client writes paper embeddings to one collection.
type Client struct {
	client         *pb.Client
	collectionName string
	vectorSize     uint64
}

// NewClient connects to the configured gRPC endpoint.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	host, port, err := parseAddress(cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid address %q: %w", cfg.Address, err)
	}

	qc, err := pb.NewClient(&pb.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &Client{
		client:         qc,
		collectionName: cfg.CollectionName,
		vectorSize:     cfg.VectorSize,
	}, nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist.
func (c *Client) EnsureCollection(ctx context.Context) error {
	exists, err := c.client.CollectionExists(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("qdrant: check collection: %w", err)
	}
	if exists {
		return nil
	}

	err = c.client.CreateCollection(ctx, &pb.CreateCollection{
		CollectionName: c.collectionName,
		VectorsConfig: pb.NewVectorsConfig(&pb.VectorParams{
			Size:     c.vectorSize,
			Distance: pb.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %q: %w", c.collectionName, err)
	}
	return nil
}

// Upsert writes a paper point. Re-ingesting the same paper overwrites it.
func (c *Client) Upsert(ctx context.Context, point PaperPoint) error {
	if uint64(len(point.Embedding)) != c.vectorSize {
		return fmt.Errorf("qdrant: vector has %d dimensions, collection expects %d", len(point.Embedding), c.vectorSize)
	}

	wait := true
	_, err := c.client.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: c.collectionName,
		Wait:           &wait,
		Points: []*pb.PointStruct{{
			Id:      pb.NewIDUUID(point.PointID()),
			Vectors: pb.NewVectors(point.Embedding...),
			Payload: point.payload(),
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert point for paper %s: %w", point.PaperID, err)
	}
	return nil
}

// Close releases the gRPC connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func parseAddress(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	if host == "" {
		return "", 0, fmt.Errorf("missing host")
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port %d out of range", port)
	}
	return host, port, nil
}
