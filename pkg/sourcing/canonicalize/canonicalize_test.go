package canonicalize

import "testing"

func TestHash_KeyOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 1, "a": 2}
	b := map[string]any{"a": 2, "b": 1}

	ha, err := Hash(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := Hash(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("expected equal hashes for equivalent maps, got %q vs %q", ha, hb)
	}
}

func TestClassifierInputHash_Deterministic(t *testing.T) {
	h1 := ClassifierInputHash("old desc", "new desc")
	h2 := ClassifierInputHash("old desc", "new desc")
	if h1 != h2 {
		t.Fatal("expected deterministic hash")
	}
	if len(h1) != len("sha256:")+16 {
		t.Fatalf("unexpected hash length: %q", h1)
	}
}

func TestClassifierInputHash_DiffersOnInput(t *testing.T) {
	h1 := ClassifierInputHash("old", "new")
	h2 := ClassifierInputHash("old", "new2")
	if h1 == h2 {
		t.Fatal("expected different hashes for different inputs")
	}
}
