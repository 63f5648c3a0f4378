package mathx

import "testing"

func TestFloorDivAndModAgree(t *testing.T) {
	for a := -100; a <= 100; a++ {
		for _, b := range []int{1, 2, 16, 33} {
			q := FloorDiv(a, b)
			m := Mod(a, b)
			if q*b+m != a {
				t.Fatalf("FloorDiv/Mod mismatch a=%d b=%d: q=%d m=%d", a, b, q, m)
			}
			if m < 0 || m >= b {
				t.Fatalf("Mod out of range a=%d b=%d: %d", a, b, m)
			}
		}
	}
	if got := FloorDiv(-1, 33); got != -1 {
		t.Fatalf("FloorDiv(-1,33)=%d want -1", got)
	}
	if got := FloorDiv(-33, 33); got != -1 {
		t.Fatalf("FloorDiv(-33,33)=%d want -1", got)
	}
	if got := FloorDiv(-34, 33); got != -2 {
		t.Fatalf("FloorDiv(-34,33)=%d want -2", got)
	}
}

func TestSpatialHash2(t *testing.T) {
	if SpatialHash2(0, 0) != 0 {
		t.Fatalf("origin hash should be zero")
	}
	if SpatialHash2(1, 0) != 73856093 {
		t.Fatalf("unexpected x hash: %d", SpatialHash2(1, 0))
	}
	if SpatialHash2(1, 2) == SpatialHash2(2, 1) {
		t.Fatalf("hash should not be symmetric")
	}
}

func TestHash2Deterministic(t *testing.T) {
	if Hash2(7, 3, -4) != Hash2(7, 3, -4) {
		t.Fatalf("Hash2 not deterministic")
	}
	if Hash2(7, 3, -4) == Hash2(8, 3, -4) {
		t.Fatalf("Hash2 ignores seed")
	}
}
