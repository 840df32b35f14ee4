package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestShutdownRunsLIFO(t *testing.T) {
	m := New(time.Second, nil)

	var order []string
	m.Register("first", func(context.Context) error { order = append(order, "first"); return nil })
	m.Register("second", func(context.Context) error { order = append(order, "second"); return nil })

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("order = %v, want [second first]", order)
	}

	select {
	case <-m.Done():
	default:
		t.Error("Done() not closed after Shutdown")
	}

	// second call is a no-op
	if err := m.Shutdown(); err != nil || len(order) != 2 {
		t.Errorf("second Shutdown ran again: %v %v", err, order)
	}
}

func TestShutdownReportsFirstError(t *testing.T) {
	m := New(time.Second, nil)
	ran := false
	m.Register("tail", func(context.Context) error { ran = true; return nil })
	m.Register("broken", func(context.Context) error { return errors.New("stuck") })

	err := m.Shutdown()
	if err == nil || err.Error() != "broken: stuck" {
		t.Errorf("Shutdown() error = %v", err)
	}
	if !ran {
		t.Error("later steps must still run after a failure")
	}
}

func TestWaitReturnsOnTrigger(t *testing.T) {
	m := New(time.Second, nil)
	called := make(chan struct{})
	m.Register("server", func(context.Context) error { close(called); return nil })

	go m.Trigger()

	if err := m.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	select {
	case <-called:
	default:
		t.Error("cleanup not run")
	}
}

func TestWaitReturnsOnContext(t *testing.T) {
	m := New(time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.Wait(ctx); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
}

type fakeServer struct{ err error }

func (f fakeServer) Shutdown(context.Context) error { return f.err }

func TestStopHTTPServer(t *testing.T) {
	if err := StopHTTPServer(fakeServer{})(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := StopHTTPServer(fakeServer{err: errors.New("busy")})(context.Background()); err == nil {
		t.Error("expected wrapped error")
	}
}
