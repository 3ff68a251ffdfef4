package pool

import "testing"

func TestBitmapFlip(t *testing.T) {
	tb := make(tickBitmap)
	tb.flip(100, 1)
	if next, ok := tb.nextInitialized(100, 1, true); !ok || next != 100 {
		t.Fatalf("expected 100 initialized, got %d %v", next, ok)
	}
	// Flipping again clears the bit and the word.
	tb.flip(100, 1)
	if len(tb) != 0 {
		t.Fatalf("expected empty bitmap, got %d words", len(tb))
	}
	if _, ok := tb.nextInitialized(100, 1, true); ok {
		t.Fatal("cleared tick still reported initialized")
	}
}

func TestBitmapSearchLeft(t *testing.T) {
	tb := make(tickBitmap)
	tb.flip(-200, 1)
	tb.flip(-55, 1)
	tb.flip(78, 1)

	// Inclusive at the starting tick.
	if next, ok := tb.nextInitialized(78, 1, true); !ok || next != 78 {
		t.Fatalf("from 78: got %d %v, want 78 true", next, ok)
	}
	if next, ok := tb.nextInitialized(80, 1, true); !ok || next != 78 {
		t.Fatalf("from 80: got %d %v, want 78 true", next, ok)
	}
	// Nothing below 78 in word 0: the word floor is returned uninitialized.
	if next, ok := tb.nextInitialized(77, 1, true); ok || next != 0 {
		t.Fatalf("from 77: got %d %v, want 0 false", next, ok)
	}
	// Negative ticks live in word -1.
	if next, ok := tb.nextInitialized(-1, 1, true); !ok || next != -55 {
		t.Fatalf("from -1: got %d %v, want -55 true", next, ok)
	}
	if next, ok := tb.nextInitialized(-56, 1, true); !ok || next != -200 {
		t.Fatalf("from -56: got %d %v, want -200 true", next, ok)
	}
	if next, ok := tb.nextInitialized(-201, 1, true); ok || next != -256 {
		t.Fatalf("from -201: got %d %v, want -256 false", next, ok)
	}
}

func TestBitmapSearchRight(t *testing.T) {
	tb := make(tickBitmap)
	tb.flip(-55, 1)
	tb.flip(78, 1)

	// Exclusive at the starting tick.
	if next, ok := tb.nextInitialized(0, 1, false); !ok || next != 78 {
		t.Fatalf("from 0: got %d %v, want 78 true", next, ok)
	}
	if next, ok := tb.nextInitialized(77, 1, false); !ok || next != 78 {
		t.Fatalf("from 77: got %d %v, want 78 true", next, ok)
	}
	if next, ok := tb.nextInitialized(78, 1, false); ok || next != 255 {
		t.Fatalf("from 78: got %d %v, want 255 false", next, ok)
	}
	if next, ok := tb.nextInitialized(-100, 1, false); !ok || next != -55 {
		t.Fatalf("from -100: got %d %v, want -55 true", next, ok)
	}
	// The search never leaves the word: from -55 upward, word -1 holds
	// nothing higher, so its ceiling comes back uninitialized.
	if next, ok := tb.nextInitialized(-55, 1, false); ok || next != -1 {
		t.Fatalf("from -55: got %d %v, want -1 false", next, ok)
	}
}

func TestBitmapSpacing(t *testing.T) {
	tb := make(tickBitmap)
	tb.flip(85200, 60)
	tb.flip(-84240, 60)

	if next, ok := tb.nextInitialized(85210, 60, true); !ok || next != 85200 {
		t.Fatalf("spaced left search: got %d %v, want 85200 true", next, ok)
	}
	// A tick between multiples compresses toward negative infinity.
	if next, ok := tb.nextInitialized(-84239, 60, true); !ok || next != -84240 {
		t.Fatalf("spaced negative search: got %d %v, want -84240 true", next, ok)
	}
	if next, ok := tb.nextInitialized(85140, 60, false); !ok || next != 85200 {
		t.Fatalf("spaced right search: got %d %v, want 85200 true", next, ok)
	}
}

func TestBitmapClone(t *testing.T) {
	tb := make(tickBitmap)
	tb.flip(42, 1)
	cp := tb.clone()
	tb.flip(42, 1)
	if next, ok := cp.nextInitialized(42, 1, true); !ok || next != 42 {
		t.Fatalf("clone affected by original mutation: %d %v", next, ok)
	}
}
