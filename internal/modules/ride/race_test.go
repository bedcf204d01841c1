// README: Concurrency tests for ride claims and cancellation (run with -race).
package ride

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"campusride/internal/apperr"
	"campusride/internal/modules/fare"
	"campusride/internal/types"
)

func TestConcurrentMatchVsCancel(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		f := newFixture(t, Config{})
		r := f.create(t, CreateCommand{RiderID: "u1", VehicleClass: fare.ClassCab})
		f.register(t, "d1", fare.ClassCab)

		start := make(chan struct{})
		var wg sync.WaitGroup
		var matchErr, cancelErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			_, matchErr = f.svc.Match(ctx, MatchCommand{RideID: r.ID})
		}()
		go func() {
			defer wg.Done()
			<-start
			_, cancelErr = f.svc.Cancel(ctx, CancelCommand{RideID: r.ID, ActorType: ActorRider, ActorID: "u1"})
		}()
		close(start)
		wg.Wait()

		if cancelErr != nil {
			t.Fatalf("cancel: %v", cancelErr)
		}
		if matchErr != nil && !errors.Is(matchErr, apperr.ErrInvalidTransition) {
			t.Fatalf("match: unexpected error %v", matchErr)
		}
		got, _ := f.svc.Get(ctx, r.ID)
		if got.State != StateCancelled || got.DriverID != "" {
			t.Fatalf("ride after race = %s/%s", got.State, got.DriverID)
		}
		if d, _ := f.pool.Get("d1"); !d.Available || d.ActiveRide != "" {
			t.Fatalf("driver leaked by cancelled ride: %+v", d)
		}
	}
}

func TestConcurrentRidesClaimOneDriver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	const n = 16
	ids := make([]types.ID, n)
	for i := range ids {
		ids[i] = f.create(t, CreateCommand{RiderID: types.ID(fmt.Sprintf("u%d", i)), VehicleClass: fare.ClassAuto}).ID
	}
	f.register(t, "d1", fare.ClassAuto)

	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			<-start
			_, err := f.svc.Match(ctx, MatchCommand{RideID: id})
			errs <- err
		}(id)
	}
	close(start)
	wg.Wait()
	close(errs)

	won := 0
	for err := range errs {
		if err == nil {
			won++
			continue
		}
		if !errors.Is(err, apperr.ErrUnavailable) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one match, got %d", won)
	}

	d, _ := f.pool.Get("d1")
	accepted := 0
	for _, id := range ids {
		r, _ := f.svc.Get(ctx, id)
		if r.State == StateAccepted {
			accepted++
			if r.DriverID != "d1" || d.ActiveRide != id {
				t.Fatalf("ride %s and driver disagree: ride driver %s, driver ride %s", id, r.DriverID, d.ActiveRide)
			}
		}
	}
	if accepted != 1 {
		t.Fatalf("expected one accepted ride, got %d", accepted)
	}
}

func TestConcurrentCompleteAndCancel(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.register(t, "d1", fare.ClassCab)
	r := f.create(t, CreateCommand{RiderID: "u1", VehicleClass: fare.ClassCab})
	if _, err := f.svc.Start(ctx, StartCommand{RideID: r.ID, DriverID: "d1", OTP: r.OTP}); err != nil {
		t.Fatalf("start: %v", err)
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	var completeErr, cancelErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, completeErr = f.svc.Complete(ctx, CompleteCommand{RideID: r.ID, DriverID: "d1"})
	}()
	go func() {
		defer wg.Done()
		<-start
		_, cancelErr = f.svc.Cancel(ctx, CancelCommand{RideID: r.ID, ActorType: ActorOperator})
	}()
	close(start)
	wg.Wait()

	if (completeErr == nil) == (cancelErr == nil) {
		t.Fatalf("expected exactly one winner: complete=%v cancel=%v", completeErr, cancelErr)
	}
	for _, err := range []error{completeErr, cancelErr} {
		if err != nil && !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if d, _ := f.pool.Get("d1"); !d.Available {
		t.Fatal("driver still held")
	}
}
