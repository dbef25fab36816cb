// README: Concurrency tests for ride transitions (run with -race).
package ride

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"ridehail/internal/errs"
	"ridehail/internal/types"
)

func TestConcurrentAcceptSameRide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	const attempts = 16
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		driver := types.Actor{ID: types.ID(fmt.Sprintf("d%d", i)), Role: types.RoleDriver}
		wg.Add(1)
		go func(a types.Actor) {
			defer wg.Done()
			<-start
			_, err := f.svc.Accept(ctx, RideCommand{Actor: a, RideID: r.ID})
			results <- err
		}(driver)
	}
	close(start)
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errs.Is(err, errs.CodeAlreadyAssigned) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly 1 success, got %d", success)
	}

	got, err := f.svc.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if got.Status != StatusDriverAssigned || got.DriverID == nil {
		t.Fatalf("unexpected final ride: status=%s driver=%v", got.Status, got.DriverID)
	}

	busy := 0
	for i := 0; i < attempts; i++ {
		if f.busy(t, types.ID(fmt.Sprintf("d%d", i))) {
			busy++
		}
	}
	if busy != 1 {
		t.Fatalf("expected exactly 1 busy driver, got %d", busy)
	}
}

func TestConcurrentAcceptVsCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r := f.request(t)

	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make(chan error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		_, err := f.svc.Accept(ctx, RideCommand{Actor: driverA, RideID: r.ID})
		results <- err
	}()
	go func() {
		defer wg.Done()
		<-start
		_, err := f.svc.Cancel(ctx, CancelCommand{Actor: passenger, RideID: r.ID, Reason: "user_cancel"})
		results <- err
	}()
	close(start)
	wg.Wait()
	close(results)

	for err := range results {
		if err != nil && !errs.Is(err, errs.CodeInvalidTransition) && !errs.Is(err, errs.CodeConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	got, err := f.svc.GetRide(ctx, r.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	switch got.Status {
	case StatusCancelled:
		if f.busy(t, driverA.ID) {
			t.Fatalf("driver still busy after cancellation")
		}
	case StatusDriverAssigned:
		if !f.busy(t, driverA.ID) {
			t.Fatalf("assigned driver not busy")
		}
	default:
		t.Fatalf("unexpected final status: %s", got.Status)
	}
}

func TestConcurrentRidesDoNotInterfere(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const rides = 10
	var wg sync.WaitGroup
	errCh := make(chan error, rides)
	for i := 0; i < rides; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := types.Actor{ID: types.ID(fmt.Sprintf("p%d", i)), Role: types.RolePassenger}
			d := types.Actor{ID: types.ID(fmt.Sprintf("drv%d", i)), Role: types.RoleDriver}
			r, err := f.svc.RequestRide(ctx, CreateCommand{Actor: p, Origin: almatyOrigin, Destination: almatyDestination})
			if err != nil {
				errCh <- err
				return
			}
			steps := []func(RideCommand) (*Ride, error){
				func(c RideCommand) (*Ride, error) { return f.svc.Accept(ctx, c) },
				func(c RideCommand) (*Ride, error) { return f.svc.Start(ctx, c) },
				func(c RideCommand) (*Ride, error) { return f.svc.Complete(ctx, c) },
			}
			for _, step := range steps {
				if _, err := step(RideCommand{Actor: d, RideID: r.ID}); err != nil {
					errCh <- err
					return
				}
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("ride flow failed: %v", err)
	}
}
