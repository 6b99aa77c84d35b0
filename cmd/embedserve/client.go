package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hyperjump/embedserve/internal/cli"
	"github.com/hyperjump/embedserve/internal/rpc"
	"github.com/hyperjump/embedserve/internal/server"
	"github.com/hyperjump/embedserve/internal/service"
	"github.com/hyperjump/embedserve/pkg/utils"
	"go.uber.org/zap"
)

const defaultServerURL = "http://localhost:5001"

// scoreOptions selects where payloads are scored.
type scoreOptions struct {
	configPath string
	serverURL  string
	grpcAddr   string
	mock       bool
	mockDims   int
}

func (o *scoreOptions) register(fs *flag.FlagSet) {
	fs.StringVar(&o.configPath, "config", defaultConfigPath, "config file path (local mode)")
	fs.StringVar(&o.serverURL, "server", defaultServerURL, "server URL (empty = embed locally)")
	fs.StringVar(&o.grpcAddr, "grpc", "", "gRPC address; takes precedence over -server")
	fs.BoolVar(&o.mock, "mock", false, "use the mock encoder in local mode")
	fs.IntVar(&o.mockDims, "dims", 384, "mock encoder dimensions")
}

// score sends payload to the selected backend and returns the response.
func (o *scoreOptions) score(ctx context.Context, payload []byte) (*service.Response, error) {
	switch {
	case o.grpcAddr != "":
		return scoreViaGRPC(ctx, o.grpcAddr, payload)
	case o.serverURL != "":
		return scoreViaHTTP(ctx, o.serverURL, payload)
	default:
		return o.scoreLocally(ctx, payload)
	}
}

func (o *scoreOptions) scoreLocally(ctx context.Context, payload []byte) (*service.Response, error) {
	cfg, _, err := loadConfig(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	var loader service.Loader
	if o.mock {
		loader = service.StaticLoader(service.NewMockModel(o.mockDims))
	} else {
		loader = service.NewModelLoader(cfg, logger)
	}
	svc := newService(cfg, loader, nil, logger)
	defer svc.Close()
	if err := svc.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize model: %w", err)
	}
	logger.Debug("local model ready", zap.String("model", svc.Info().Model))
	resp := svc.HandleRequest(ctx, payload)
	return &resp, nil
}

func scoreViaHTTP(ctx context.Context, serverURL string, payload []byte) (*service.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(serverURL, "/")+"/score", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out service.Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	if out.Failed() {
		out.Kind = service.ErrorKind(resp.Header.Get(server.ErrorKindHeader))
	}
	return &out, nil
}

func scoreViaGRPC(ctx context.Context, addr string, payload []byte) (*service.Response, error) {
	client, err := rpc.NewClient(addr)
	if err != nil {
		return nil, err
	}
	defer client.Close()
	r, err := client.Embed(ctx, payload)
	if err != nil {
		return nil, err
	}
	return &service.Response{
		Embedding:  r.Embedding,
		Embeddings: r.Embeddings,
		Error:      r.Error,
		Kind:       service.ErrorKind(r.Kind),
	}, nil
}

// buildPayload turns CLI texts into a request document: one text becomes
// {"text": ...}, several (or batch) become {"texts": [...]}.
func buildPayload(texts []string, batch bool) ([]byte, error) {
	if len(texts) == 0 {
		return nil, errors.New("no input text")
	}
	if len(texts) == 1 && !batch {
		return json.Marshal(map[string]string{"text": texts[0]})
	}
	return json.Marshal(map[string][]string{"texts": texts})
}

// argsReorder moves flags (and their values) ahead of the positional texts so
// that flag.Parse() sees them, keeping the texts in their original order.
// Everything after "--" is positional.
func argsReorder(fs *flag.FlagSet, args []string) []string {
	var flags, texts []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			texts = append(texts, args[i+1:]...)
			break
		}
		if len(a) < 2 || a[0] != '-' {
			texts = append(texts, a)
			continue
		}
		flags = append(flags, a)
		name := strings.TrimLeft(a, "-")
		if strings.Contains(name, "=") {
			continue
		}
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			continue
		}
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if len(texts) == 0 {
		return flags
	}
	return append(append(flags, "--"), texts...)
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runEmbed() {
	fs := flag.NewFlagSet("embed", flag.ExitOnError)
	var opts scoreOptions
	opts.register(fs)
	batch := fs.Bool("batch", false, "send a batch payload even for one text")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	timeout := fs.Duration("timeout", 2*time.Minute, "overall timeout")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	format := parseFormat(*outputFormat)
	texts := fs.Args()
	payload, err := buildPayload(texts, *batch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Usage: embedserve embed [flags] <text>...")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	resp, err := opts.score(ctx, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Embed failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteEmbedResult(os.Stdout, texts, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
	if resp.Failed() {
		os.Exit(2)
	}
}

func runSimilarity() {
	fs := flag.NewFlagSet("similarity", flag.ExitOnError)
	var opts scoreOptions
	opts.register(fs)
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(fs, os.Args[2:]))

	format := parseFormat(*outputFormat)
	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: embedserve similarity [flags] <a> <b>")
		os.Exit(1)
	}
	a, b := fs.Arg(0), fs.Arg(1)
	payload, _ := buildPayload([]string{a, b}, true)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	resp, err := opts.score(ctx, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Similarity failed: %v\n", err)
		os.Exit(1)
	}
	if resp.Failed() {
		fmt.Fprintf(os.Stderr, "Similarity failed: %s\n", resp.Error)
		os.Exit(2)
	}
	vecs := cli.Vectors(resp)
	if len(vecs) != 2 {
		fmt.Fprintf(os.Stderr, "Similarity failed: expected 2 embeddings, got %d\n", len(vecs))
		os.Exit(1)
	}
	s := cli.Similarity{A: a, B: b, Cosine: utils.CosineSimilarity(vecs[0], vecs[1])}
	if err := cli.WriteSimilarity(os.Stdout, s, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	info, err := statusViaHTTP(*serverURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(info); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("status:      %s\n", info.State)
		if info.Model != "" {
			fmt.Printf("model:       %s\n", info.Model)
		}
		if info.Dimensions > 0 {
			fmt.Printf("dimensions:  %d\n", info.Dimensions)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
	if info.State != service.StateReady {
		os.Exit(2)
	}
}

// statusViaHTTP reads /ready. A 503 still carries a valid Info body.
func statusViaHTTP(serverURL string) (*service.Info, error) {
	resp, err := http.Get(strings.TrimRight(serverURL, "/") + "/ready")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var info service.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &info, nil
}
