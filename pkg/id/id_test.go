package id

import "testing"

func TestNextMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		cur := g.Next()
		if cur.Compare(prev) <= 0 {
			t.Fatalf("id not increasing: %s then %s", prev, cur)
		}
		prev = cur
	}
}

func TestClockRegressionPinsToLastMs(t *testing.T) {
	orig := NowMs
	defer func() { NowMs = orig }()

	now := int64(1_000_000)
	NowMs = func() int64 { return now }

	g := NewGenerator()
	a := g.Next()
	now = 999_999 // clock goes backwards
	b := g.Next()
	if b.Compare(a) <= 0 {
		t.Fatalf("regressed clock broke monotonicity: %s then %s", a, b)
	}
	if b.TimeMs() != a.TimeMs() {
		t.Fatalf("expected pinned timestamp, got %d vs %d", b.TimeMs(), a.TimeMs())
	}
}

func TestParseRoundTrip(t *testing.T) {
	g := NewGenerator()
	id := g.Next()
	parsed, err := Parse(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, id)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected error for bad hex")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Fatalf("expected error for short id")
	}
}
