package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a remote Embedding service.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient connects to address. Extra options are appended to the defaults.
func NewClient(address string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}, opts...)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to embedding service: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Embed sends a raw payload. A scoring failure is returned in the response,
// not as an error.
func (c *Client) Embed(ctx context.Context, payload []byte) (*EmbedResponse, error) {
	out := new(EmbedResponse)
	if err := c.conn.Invoke(ctx, embedMethod, &EmbedRequest{Payload: string(payload)}, out); err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return out, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
