package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hyperjump/embedserve/internal/config"
	"github.com/hyperjump/embedserve/internal/service"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

func startBufServer(t *testing.T, ready bool) *Client {
	t.Helper()
	svc := service.New(service.StaticLoader(service.NewMockModel(8)), service.Options{})
	if ready {
		if err := svc.Initialize(context.Background()); err != nil {
			t.Fatal(err)
		}
	}

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(svc, &config.GRPCConfig{Enabled: true}, nil)
	go func() { _ = srv.Serve(lis) }()

	client, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		_ = svc.Close()
	})
	return client
}

func TestEmbed_Single(t *testing.T) {
	client := startBufServer(t, true)
	resp, err := client.Embed(context.Background(), []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error != "" || len(resp.Embedding) != 8 || resp.Embeddings != nil {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestEmbed_Batch(t *testing.T) {
	client := startBufServer(t, true)
	resp, err := client.Embed(context.Background(), []byte(`{"texts":["a","b","c"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Embeddings) != 3 {
		t.Fatalf("got %d embeddings, want 3", len(resp.Embeddings))
	}
}

func TestEmbed_FailuresInBody(t *testing.T) {
	tests := []struct {
		name    string
		ready   bool
		payload string
		kind    service.ErrorKind
	}{
		{"uninitialized", false, `{"text":"hello"}`, service.KindUninitialized},
		{"missing input", true, `{"other":1}`, service.KindValidation},
		{"malformed", true, `{"text":`, service.KindParse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := startBufServer(t, tt.ready)
			resp, err := client.Embed(context.Background(), []byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected rpc error: %v", err)
			}
			if resp.Error == "" || resp.Kind != string(tt.kind) {
				t.Errorf("got error=%q kind=%q, want kind %q", resp.Error, resp.Kind, tt.kind)
			}
			if resp.Embedding != nil || resp.Embeddings != nil {
				t.Errorf("failure carried embeddings: %+v", resp)
			}
		})
	}
}
