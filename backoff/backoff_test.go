package backoff

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

var errLimited = errors.New("429")

func testPolicy(waits *[]time.Duration) Policy {
	p := Default()
	p.Jitter = func() float64 { return 0.5 }
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return p
}

func isLimited(err error) bool { return errors.Is(err, errLimited) }

func TestDoWindowsDoubleAndCap(t *testing.T) {
	var waits []time.Duration
	p := testPolicy(&waits)
	p.Initial = 10 * time.Second

	calls := 0
	err := p.Do(context.Background(), isLimited, func() error {
		calls++
		return errLimited
	})
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, errLimited) {
		t.Fatalf("Do() error = %v, want ErrExhausted wrapping the last error", err)
	}
	if calls != 5 {
		t.Fatalf("calls = %d, want 5", calls)
	}
	want := []time.Duration{5 * time.Second, 10 * time.Second, 15 * time.Second, 15 * time.Second}
	if !reflect.DeepEqual(waits, want) {
		t.Fatalf("waits = %v, want %v", waits, want)
	}
}

func TestDoDefaultWindows(t *testing.T) {
	var waits []time.Duration
	p := testPolicy(&waits)
	p.Jitter = func() float64 { return 0.999999 }
	_ = p.Do(context.Background(), isLimited, func() error { return errLimited })

	windows := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	for i, w := range waits {
		if w < 0 || w >= windows[i] {
			t.Fatalf("wait %d = %v, want within [0, %v)", i, w, windows[i])
		}
	}
}

func TestDoStopsOnSuccessAndFatal(t *testing.T) {
	var waits []time.Duration
	p := testPolicy(&waits)

	calls := 0
	err := p.Do(context.Background(), isLimited, func() error {
		calls++
		if calls < 3 {
			return errLimited
		}
		return nil
	})
	if err != nil || calls != 3 || len(waits) != 2 {
		t.Fatalf("Do() = %v after %d calls and %d waits, want success after 3", err, calls, len(waits))
	}

	fatal := errors.New("500")
	calls = 0
	err = p.Do(context.Background(), isLimited, func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) || errors.Is(err, ErrExhausted) || calls != 1 {
		t.Fatalf("Do() = %v after %d calls, want immediate fatal error", err, calls)
	}
}

func TestSleepHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sleep() = %v, want context.Canceled", err)
	}
}
