package codec

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
)

func TestRegistryLookup(t *testing.T) {
	t.Parallel()

	var r Registry
	if _, err := r.Lookup(LZX); err == nil {
		t.Fatal("Lookup(LZX) should fail: LZX has no registered implementation")
	}

	f := NewFlate(flate.DefaultCompression)
	r.Register(LZX, f)
	got, err := r.Lookup(LZX)
	if err != nil {
		t.Fatalf("Lookup after Register: %v", err)
	}
	if got != Codec(f) {
		t.Fatal("Lookup returned a different Codec than was registered")
	}
}

func TestFlateRoundTrip(t *testing.T) {
	t.Parallel()

	f := NewFlate(flate.DefaultCompression)
	src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 200)

	compressed, err := f.Compress(src)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}

	dst := make([]byte, len(src))
	if err := f.Decompress(dst, compressed); err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(dst, src) {
		t.Fatal("round-tripped content does not match original")
	}
}

func TestFlateRoundTripEmpty(t *testing.T) {
	t.Parallel()

	f := NewFlate(flate.DefaultCompression)
	compressed, err := f.Compress(nil)
	if err != nil {
		t.Fatalf("Compress(nil): %v", err)
	}
	if err := f.Decompress(nil, compressed); err != nil {
		t.Fatalf("Decompress of empty chunk: %v", err)
	}
}
