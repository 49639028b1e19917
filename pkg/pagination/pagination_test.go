package pagination

import (
	"testing"
	"time"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -4: DefaultLimit, 5: 5, 500: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if LimitWithBuffer(10) != 11 {
		t.Fatal("expected buffer of one")
	}
}

func TestCursorRoundTripKeepsPipesInValue(t *testing.T) {
	in := Cursor{Value: "Blue | Green Wash", ID: 42}
	out, err := ParseCursor(EncodeCursor(in))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *out != in {
		t.Fatalf("expected %+v, got %+v", in, *out)
	}
}

func TestTimeCursor(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 8, time.FixedZone("x", 3600))
	cur := TimeCursor(ts, 7)
	parsed, err := cur.TimeValue()
	if err != nil {
		t.Fatalf("time value: %v", err)
	}
	if !parsed.Equal(ts) {
		t.Fatalf("expected %v, got %v", ts, parsed)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if cur, err := ParseCursor(""); cur != nil || err != nil {
		t.Fatalf("blank cursor should be nil, got %v %v", cur, err)
	}
	for _, bad := range []string{"!!!", EncodeCursor(Cursor{Value: "x"}), "bm9waXBl"} {
		if _, err := ParseCursor(bad); err == nil {
			t.Fatalf("expected %q to fail", bad)
		}
	}
}
