package classifier

import (
	"context"
	"testing"

	"github.com/sourcingengine/core/pkg/sourcing/llm"
)

type fakeBackend struct {
	content string
	err     error
	calls   int
}

func (f *fakeBackend) Chat(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Content: f.content}, nil
}

func TestClassify_HighConfidencePivot(t *testing.T) {
	backend := &fakeBackend{content: `{"label":"pivot","confidence":0.92,"rationale":"moved to enterprise"}`}
	c := New(backend, DefaultConfig())

	result := c.Classify(context.Background(), "old", "new")
	if result.Label != LabelPivot {
		t.Fatalf("expected pivot, got %v", result.Label)
	}
	if result.Cached {
		t.Fatal("first call should not be cached")
	}
}

func TestClassify_LowConfidenceOverridesToNeedsReview(t *testing.T) {
	backend := &fakeBackend{content: `{"label":"expansion","confidence":0.4,"rationale":"maybe"}`}
	c := New(backend, DefaultConfig())

	result := c.Classify(context.Background(), "old", "new")
	if result.Label != LabelNeedsReview {
		t.Fatalf("expected needs_review override, got %v", result.Label)
	}
	if result.Confidence != 0.4 {
		t.Fatalf("expected original confidence preserved, got %v", result.Confidence)
	}
}

func TestClassify_CacheHitSkipsBackend(t *testing.T) {
	backend := &fakeBackend{content: `{"label":"minor","confidence":0.9,"rationale":"small wording change"}`}
	c := New(backend, DefaultConfig())

	first := c.Classify(context.Background(), "old", "new")
	second := c.Classify(context.Background(), "old", "new")

	if first.Cached {
		t.Fatal("first call should not be cached")
	}
	if !second.Cached {
		t.Fatal("second call with identical inputs should hit cache")
	}
	if backend.calls != 1 {
		t.Fatalf("expected backend called once, got %d", backend.calls)
	}
}

func TestClassify_BackendErrorYieldsNeedsReview(t *testing.T) {
	backend := &fakeBackend{err: context.DeadlineExceeded}
	c := New(backend, DefaultConfig())

	result := c.Classify(context.Background(), "old", "new")
	if result.Label != LabelNeedsReview || result.Confidence != 0.0 {
		t.Fatalf("expected needs_review/0.0 on backend error, got %+v", result)
	}
}

func TestClassify_MalformedResponseYieldsNeedsReview(t *testing.T) {
	backend := &fakeBackend{content: "not json"}
	c := New(backend, DefaultConfig())

	result := c.Classify(context.Background(), "old", "new")
	if result.Label != LabelNeedsReview {
		t.Fatalf("expected needs_review for malformed response, got %v", result.Label)
	}
}

func TestSaveLoadCache_RoundTrips(t *testing.T) {
	backend := &fakeBackend{content: `{"label":"minor","confidence":0.9,"rationale":"x"}`}
	c := New(backend, DefaultConfig())
	c.Classify(context.Background(), "old", "new")

	data, err := c.SaveCache()
	if err != nil {
		t.Fatal(err)
	}

	c2 := New(backend, DefaultConfig())
	if err := c2.LoadCache(data); err != nil {
		t.Fatal(err)
	}
	if c2.CacheSize() != 1 {
		t.Fatalf("expected 1 cached entry after load, got %d", c2.CacheSize())
	}
}
