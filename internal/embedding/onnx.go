//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions configures the ONNX Runtime encoder.
type ONNXOptions struct {
	// LibraryPath is the onnxruntime shared library; empty uses the platform default.
	LibraryPath string
	// Dimensions overrides the hidden size read from the model graph.
	Dimensions int
	// IntraOpThreads limits ONNX Runtime's intra-op parallelism (0 = runtime default).
	IntraOpThreads int
	// OutputName is the hidden-state output (default "last_hidden_state").
	OutputName string
}

var ortInitMu sync.Mutex

// ONNXEncoder runs a transformer encoder graph with ONNX Runtime. It requires CGO
// and the onnxruntime shared library.
type ONNXEncoder struct {
	session       *ort.DynamicAdvancedSession
	dimensions    int
	useTokenTypes bool
	guard         *sessionGuard
}

// NewONNXEncoder loads modelPath. InitializeEnvironment is called if not already done.
func NewONNXEncoder(modelPath string, opts ONNXOptions) (*ONNXEncoder, error) {
	if err := initializeRuntime(opts.LibraryPath); err != nil {
		return nil, err
	}
	if opts.OutputName == "" {
		opts.OutputName = "last_hidden_state"
	}

	inputsInfo, outputsInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs: %w", err)
	}
	inputNames := []string{"input_ids", "attention_mask"}
	useTokenTypes := false
	for _, in := range inputsInfo {
		if in.Name == "token_type_ids" {
			useTokenTypes = true
			inputNames = append(inputNames, in.Name)
		}
	}

	dimensions := opts.Dimensions
	if dimensions <= 0 {
		for _, out := range outputsInfo {
			if out.Name == opts.OutputName && len(out.Dimensions) == 3 {
				dimensions = int(out.Dimensions[2])
			}
		}
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("cannot determine hidden size of output %q; set embedding.dimensions", opts.OutputName)
	}

	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer sessionOpts.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := sessionOpts.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("failed to set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{opts.OutputName}, sessionOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return &ONNXEncoder{
		session:       session,
		dimensions:    dimensions,
		useTokenTypes: useTokenTypes,
		guard:         newSessionGuard(),
	}, nil
}

func initializeRuntime(libraryPath string) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
	}
	return nil
}

// Encode runs one inference over the whole batch. It returns ctx.Err() once
// ctx is done, even while another inference holds the session or this one is
// still running; an abandoned run releases its tensors when it finishes.
func (e *ONNXEncoder) Encode(ctx context.Context, batch *TokenBatch) (*HiddenStates, error) {
	var hidden *HiddenStates
	err := e.guard.run(ctx, func() error {
		if e.session == nil {
			return fmt.Errorf("encoder is closed")
		}
		var err error
		hidden, err = e.run(batch)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hidden, nil
}

// run must be called with the guard held.
func (e *ONNXEncoder) run(batch *TokenBatch) (*HiddenStates, error) {
	shape := ort.NewShape(int64(batch.Batch), int64(batch.SeqLen))

	inputIDs, err := ort.NewTensor(shape, batch.InputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attentionMask, err := ort.NewTensor(shape, batch.AttentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMask.Destroy()
	inputs := []ort.ArbitraryTensor{inputIDs, attentionMask}
	if e.useTokenTypes {
		tokenTypeIDs, err := ort.NewTensor(shape, batch.TokenTypeIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
		}
		defer tokenTypeIDs.Destroy()
		inputs = append(inputs, tokenTypeIDs)
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch.Batch), int64(batch.SeqLen), int64(e.dimensions)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run(inputs, []ort.ArbitraryTensor{output}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data := make([]float32, len(output.GetData()))
	copy(data, output.GetData())
	return &HiddenStates{Data: data, Batch: batch.Batch, SeqLen: batch.SeqLen, Hidden: e.dimensions}, nil
}

// Dimensions returns the hidden size.
func (e *ONNXEncoder) Dimensions() int {
	return e.dimensions
}

// Close waits for a running inference and destroys the session.
func (e *ONNXEncoder) Close() error {
	e.guard.lock()
	defer e.guard.unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	return err
}
