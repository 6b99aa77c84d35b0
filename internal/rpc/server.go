package rpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/hyperjump/embedserve/internal/config"
	"github.com/hyperjump/embedserve/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Scorer handles raw scoring payloads.
type Scorer interface {
	HandleRequest(ctx context.Context, raw []byte) service.Response
}

// Server serves the Embedding service. Scoring failures travel in the
// response body; RPC errors are reserved for transport problems.
type Server struct {
	scorer Scorer
	config *config.GRPCConfig
	logger *zap.Logger
	grpc   *grpc.Server
}

// NewServer creates a gRPC server bound to scorer.
func NewServer(scorer Scorer, cfg *config.GRPCConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{scorer: scorer, config: cfg, logger: logger}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.logUnary))
	RegisterEmbeddingServer(s.grpc, s)
	return s
}

// Embed implements EmbeddingServer.
func (s *Server) Embed(ctx context.Context, req *EmbedRequest) (*EmbedResponse, error) {
	resp := s.scorer.HandleRequest(ctx, []byte(req.Payload))
	return &EmbedResponse{
		Embedding:  resp.Embedding,
		Embeddings: resp.Embeddings,
		Error:      resp.Error,
		Kind:       string(resp.Kind),
	}, nil
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	fields := []zap.Field{
		zap.String("method", info.FullMethod),
		zap.Duration("took", time.Since(start)),
	}
	if r, ok := resp.(*EmbedResponse); ok && r.Error != "" {
		fields = append(fields, zap.String("kind", r.Kind))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Info("rpc", fields...)
	return resp, err
}

// Serve accepts connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Start listens on the configured port and serves.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.config.Port, err)
	}
	s.logger.Info("Starting gRPC server", zap.Int("port", s.config.Port))
	return s.Serve(lis)
}

// Stop drains in-flight calls, forcing a stop when ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.grpc.Stop()
		return ctx.Err()
	}
}
