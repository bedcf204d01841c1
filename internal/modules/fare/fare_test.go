package fare

import (
	"context"
	"errors"
	"math"
	"testing"

	"campusride/internal/apperr"
	"campusride/internal/testutil/pgtest"
	"campusride/internal/types"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestBaseFare(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		name  string
		km    float64
		class VehicleClass
		want  float64
	}{
		{"cab minimum", 2, ClassCab, 100},
		{"cab per km", 10, ClassCab, 150},
		{"toto", 6, ClassToto, 60},
		{"auto minimum", 0, ClassAuto, 60},
		{"moto", 7.5, ClassMoto, 60},
		{"shuttle", 3, ClassShuttle, 30},
		{"bike is free", 25, ClassBike, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.BaseFare(tt.km, tt.class)
			if err != nil {
				t.Fatalf("base fare: %v", err)
			}
			if got != tt.want {
				t.Errorf("BaseFare(%v, %s) = %v, want %v", tt.km, tt.class, got, tt.want)
			}
		})
	}
}

func TestBaseFareNeverBelowMinimum(t *testing.T) {
	e := newEngine(t)
	for _, class := range Classes {
		r, _ := e.Rate(class)
		for _, km := range []float64{0, 0.01, 0.5, 1, 3.3, 6.66, 10, 42} {
			got, err := e.BaseFare(km, class)
			if err != nil {
				t.Fatalf("base fare: %v", err)
			}
			if got < r.Minimum {
				t.Errorf("BaseFare(%v, %s) = %v below minimum %v", km, class, got, r.Minimum)
			}
		}
	}
}

func TestBaseFareInvalid(t *testing.T) {
	e := newEngine(t)
	if _, err := e.BaseFare(-1, ClassCab); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("negative distance: %v", err)
	}
	if _, err := e.BaseFare(math.NaN(), ClassCab); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("NaN distance: %v", err)
	}
	if _, err := e.BaseFare(1, "rickshaw"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown class: %v", err)
	}
}

func TestApplyDiscounts(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		amount float64
		role   RiderRole
		shared bool
		want   float64
	}{
		{100, RoleNormal, false, 100},
		{100, RoleStudent, false, 50},
		{100, RoleCollege, true, 80},
		{100, RoleStudent, true, 40},
		{33.33, RoleStudent, false, 16.67},
		{12.34, RoleNormal, true, 9.87},
	}
	for _, tt := range tests {
		if got := e.ApplyDiscounts(tt.amount, tt.role, tt.shared); got != tt.want {
			t.Errorf("ApplyDiscounts(%v, %s, %v) = %v, want %v", tt.amount, tt.role, tt.shared, got, tt.want)
		}
	}
}

func TestQuoteComposesDiscountsMultiplicatively(t *testing.T) {
	e := newEngine(t)
	for _, class := range Classes {
		for _, km := range []float64{0, 1.7, 5, 9.99, 13} {
			base, _ := e.BaseFare(km, class)
			got, err := e.Quote(km, class, RoleStudent, true)
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if want := types.RoundMoney(base * 0.5 * 0.8); got != want {
				t.Errorf("Quote(%v, %s) = %v, want %v", km, class, got, want)
			}
		}
	}
}

func TestQuoteNeverDecreasesWithDistance(t *testing.T) {
	e := newEngine(t)
	for _, class := range Classes {
		for _, role := range []RiderRole{RoleNormal, RoleStudent} {
			prev := -1.0
			for km := 0.0; km <= 30; km += 0.25 {
				got, err := e.Quote(km, class, role, false)
				if err != nil {
					t.Fatalf("quote: %v", err)
				}
				if got < prev {
					t.Fatalf("%s/%s: quote dropped from %v to %v at %v km", class, role, prev, got, km)
				}
				prev = got
			}
		}
	}
}

func TestSplitFare(t *testing.T) {
	e := newEngine(t)

	got, err := e.SplitFare(100, []Participant{{RiderID: "u1", LegKm: 30}, {RiderID: "u2", LegKm: 70}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if got["u1"] != 30 || got["u2"] != 70 {
		t.Errorf("proportional split = %v", got)
	}

	got, err = e.SplitFare(84.5, []Participant{{RiderID: "u1"}, {RiderID: "u2"}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if got["u1"] != 42.25 || got["u2"] != 42.25 {
		t.Errorf("equal split = %v", got)
	}
}

// Shares are rounded one by one, so their sum may be off by a cent or so.
func TestSplitFareKeepsRoundingDrift(t *testing.T) {
	e := newEngine(t)
	got, err := e.SplitFare(100, []Participant{{RiderID: "a"}, {RiderID: "b"}, {RiderID: "c"}})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	var sum float64
	for _, v := range got {
		if v != 33.33 {
			t.Errorf("share = %v, want 33.33", v)
		}
		sum += v
	}
	if types.RoundMoney(sum) != 99.99 {
		t.Errorf("sum = %v, want 99.99", sum)
	}
	if drift := math.Abs(100 - sum); drift > 0.005*float64(len(got))+1e-9 {
		t.Errorf("drift %v exceeds half a cent per share", drift)
	}
}

func TestSplitFareInvalid(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		name  string
		total float64
		ps    []Participant
	}{
		{"no participants", 10, nil},
		{"negative total", -1, []Participant{{RiderID: "a"}}},
		{"negative leg", 10, []Participant{{RiderID: "a", LegKm: -2}}},
		{"duplicate", 10, []Participant{{RiderID: "a"}, {RiderID: "a"}}},
		{"missing id", 10, []Participant{{LegKm: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.SplitFare(tt.total, tt.ps); !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestRateTableValidate(t *testing.T) {
	bad := DefaultRates()
	bad[ClassCab] = Rate{PerKm: -1}
	if _, err := NewEngine(bad); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("negative rate: %v", err)
	}

	missing := DefaultRates()
	delete(missing, ClassBike)
	if err := missing.Validate(); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("missing class: %v", err)
	}

	unknown := DefaultRates()
	unknown["rickshaw"] = Rate{}
	if err := unknown.Validate(); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("unknown class: %v", err)
	}
}

func TestSetRate(t *testing.T) {
	e := newEngine(t)
	if err := e.SetRate(ClassCab, Rate{PerKm: 20, Minimum: 120}); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	if got, _ := e.BaseFare(10, ClassCab); got != 200 {
		t.Fatalf("base fare after update = %v", got)
	}
	if err := e.SetRate(ClassCab, Rate{PerKm: -1}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := e.SetRate("jet", Rate{}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	rates := e.Rates()
	rates[ClassCab] = Rate{}
	if got, _ := e.Rate(ClassCab); got.PerKm != 20 {
		t.Fatal("Rates must return a copy")
	}
}

func TestEngineCopiesTable(t *testing.T) {
	table := DefaultRates()
	e, err := NewEngine(table)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	table[ClassCab] = Rate{PerKm: 1000, Minimum: 1000}
	if got, _ := e.BaseFare(1, ClassCab); got != 100 {
		t.Errorf("engine saw caller mutation: %v", got)
	}
}

func TestParseRiderRole(t *testing.T) {
	if r, err := ParseRiderRole(""); err != nil || r != RoleNormal {
		t.Errorf("empty role = %v, %v", r, err)
	}
	if _, err := ParseRiderRole("driver"); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("driver role: %v", err)
	}
}

func TestStoreLoadRates(t *testing.T) {
	db := pgtest.Open(t, "fare_rates")
	store := NewStore(db)
	ctx := context.Background()

	if err := store.SaveRate(ctx, ClassCab, Rate{PerKm: 20, Minimum: 120}); err != nil {
		t.Fatalf("save rate: %v", err)
	}
	table, err := store.LoadRates(ctx)
	if err != nil {
		t.Fatalf("load rates: %v", err)
	}
	if table[ClassCab] != (Rate{PerKm: 20, Minimum: 120}) {
		t.Errorf("cab rate = %+v", table[ClassCab])
	}
	if table[ClassToto] != DefaultRates()[ClassToto] {
		t.Errorf("toto should keep default, got %+v", table[ClassToto])
	}
	if err := store.SaveRate(ctx, ClassCab, Rate{PerKm: -1}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("negative rate: %v", err)
	}
}
