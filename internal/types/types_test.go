package types

import "testing"

func TestRoundMoney(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{1.004, 1},
		{1.005, 1.01},
		{2.675, 2.68},
		{33.333333, 33.33},
		{66.666666, 66.67},
		{100, 100},
		{-1.005, -1.01},
	}
	for _, tc := range cases {
		if got := RoundMoney(tc.in); got != tc.want {
			t.Errorf("RoundMoney(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestMinorUnits(t *testing.T) {
	if got := MinorUnits(123.45); got != 12345 {
		t.Fatalf("MinorUnits = %d, want 12345", got)
	}
	if got := FromMinorUnits(12345); got != 123.45 {
		t.Fatalf("FromMinorUnits = %v, want 123.45", got)
	}
}

func TestParsePoint(t *testing.T) {
	p, ok := ParsePoint("22.5726, 88.3639")
	if !ok {
		t.Fatal("expected coordinate to parse")
	}
	if p.Lat != 22.5726 || p.Lng != 88.3639 {
		t.Fatalf("unexpected point %+v", p)
	}
	for _, loc := range []Location{"Main Gate", "1,2,3", "abc,1", "91,0", "0,181", ""} {
		if _, ok := ParsePoint(loc); ok {
			t.Errorf("ParsePoint(%q) should fail", loc)
		}
	}
	if got := (Point{Lat: 1, Lng: 2}).Location(); got != "1.000000,2.000000" {
		t.Fatalf("Location() = %q", got)
	}
}
