package werror

import (
	"errors"
	"testing"
)

func TestIsMatchesByKindOnly(t *testing.T) {
	t.Parallel()

	a := New(Decompression, "chunk 3 rejected")
	b := New(Decompression, "different message, same kind")
	if !errors.Is(a, b) {
		t.Fatal("errors of the same Kind should match via errors.Is")
	}

	c := New(InvalidResource, "chunk table malformed")
	if errors.Is(a, c) {
		t.Fatal("errors of different Kind should not match")
	}
}

func TestWrapUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("disk full")
	err := Wrap(Write, "flushing header", cause)
	if !errors.Is(err, cause) {
		t.Fatal("Wrap should preserve the cause for errors.Is/As")
	}
}
