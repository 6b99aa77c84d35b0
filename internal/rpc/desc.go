package rpc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "embedserve.v1.Embedding"
	embedMethod = "/" + ServiceName + "/Embed"
)

// EmbedRequest carries a scoring payload such as {"text": "..."} as a string,
// so malformed documents reach the server and are reported as parse errors.
type EmbedRequest struct {
	Payload string `json:"payload"`
}

// EmbedResponse mirrors the HTTP response body. Kind is set only on failure.
type EmbedResponse struct {
	Embedding  []float32   `json:"embedding,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
	Error      string      `json:"error,omitempty"`
	Kind       string      `json:"kind,omitempty"`
}

// EmbeddingServer is implemented by Server.
type EmbeddingServer interface {
	Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error)
}

func embedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(EmbedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EmbeddingServer).Embed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: embedMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(EmbeddingServer).Embed(ctx, req.(*EmbedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EmbeddingServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Embed", Handler: embedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "embedserve/v1/embedding.proto",
}

// RegisterEmbeddingServer registers srv on s.
func RegisterEmbeddingServer(s grpc.ServiceRegistrar, srv EmbeddingServer) {
	s.RegisterService(&serviceDesc, srv)
}
