package embedding

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docsbase/backend/internal/llm"
)

// fakeGateway records embed calls and answers each input with a vector whose
// first component encodes the input's position across all calls.
type fakeGateway struct {
	batches [][]string
	failOn  int // batch index to fail on, -1 for never
	seen    int
}

func (f *fakeGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) Provider(name string) (llm.Provider, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	batchIdx := len(f.batches)
	f.batches = append(f.batches, req.Input)
	if f.failOn >= 0 && batchIdx == f.failOn {
		return nil, errors.New("provider unavailable")
	}
	out := make([][]float32, len(req.Input))
	for i := range req.Input {
		out[i] = []float32{float32(f.seen)}
		f.seen++
	}
	return &llm.EmbeddingResponse{Embeddings: out}, nil
}

func inputs(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	return texts
}

func TestEmbedRespectsBatchSize(t *testing.T) {
	gw := &fakeGateway{failOn: -1}
	svc := NewService(gw, "", 100)

	vecs, err := svc.Embed(context.Background(), inputs(250))
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if len(vecs) != 250 {
		t.Fatalf("got %d vectors, want 250", len(vecs))
	}
	if len(gw.batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(gw.batches))
	}
	for i, b := range gw.batches {
		if len(b) > 100 {
			t.Fatalf("batch %d has %d texts, exceeds limit 100", i, len(b))
		}
	}
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	gw := &fakeGateway{failOn: -1}
	svc := NewService(gw, "", 10)

	vecs, err := svc.Embed(context.Background(), inputs(35))
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Fatalf("vector %d maps to input %v, order not preserved", i, v[0])
		}
	}
}

func TestEmbedBatchFailureAborts(t *testing.T) {
	gw := &fakeGateway{failOn: 1}
	svc := NewService(gw, "", 10)

	_, err := svc.Embed(context.Background(), inputs(30))
	if err == nil {
		t.Fatal("Embed() succeeded despite batch failure")
	}
	if len(gw.batches) != 2 {
		t.Fatalf("submitted %d batches after failure, want 2 (no batches past the failing one)", len(gw.batches))
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	gw := &fakeGateway{failOn: -1}
	svc := NewService(gw, "", 10)

	vecs, err := svc.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed(nil) error: %v", err)
	}
	if vecs != nil {
		t.Fatalf("Embed(nil) = %v, want nil", vecs)
	}
}
