package replay

import (
	"errors"
	"testing"
)

func TestGuardBoundaryIsInclusive(t *testing.T) {
	g := Guard{Window: 60}
	now := int64(1_760_000_000)
	cases := []struct {
		name string
		ts   int64
		want error
	}{
		{"same second", now, nil},
		{"inside window", now - 30, nil},
		{"exactly window", now - 60, nil},
		{"window plus one", now - 61, ErrStale},
		{"one second ahead", now + 1, ErrFuture},
		{"far past", 0, ErrStale},
	}
	for _, tc := range cases {
		if err := g.Validate(tc.ts, now); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestGuardZeroWindowAcceptsOnlyNow(t *testing.T) {
	g := Guard{}
	if err := g.Validate(100, 100); err != nil {
		t.Fatalf("expected same-second payload to pass, got %v", err)
	}
	if err := g.Validate(99, 100); !errors.Is(err, ErrStale) {
		t.Fatalf("expected stale, got %v", err)
	}
}
