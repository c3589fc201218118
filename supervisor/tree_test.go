package supervisor

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type countingService struct {
	starts   atomic.Int32
	failures int32
}

func (s *countingService) Serve(ctx context.Context) error {
	n := s.starts.Add(1)
	if n <= s.failures {
		return errors.New("simulated failure")
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestTreeDefaults(t *testing.T) {
	tree := NewTree(zerolog.Nop(), TreeConfig{})
	if tree.config.FailureThreshold != 5 || tree.config.ShutdownTimeout != 10*time.Second {
		t.Fatalf("defaults not applied: %+v", tree.config)
	}
}

func TestTreeRestartsFailedService(t *testing.T) {
	tree := NewTree(zerolog.Nop(), TreeConfig{FailureBackoff: 10 * time.Millisecond, ShutdownTimeout: time.Second})
	svc := &countingService{failures: 2}
	tree.AddWorkerService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	done := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for svc.starts.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if got := svc.starts.Load(); got < 3 {
		t.Fatalf("expected service to be restarted, starts=%d", got)
	}
}

type fakeServer struct {
	mu       sync.Mutex
	stopped  chan struct{}
	shutdown bool
}

func (f *fakeServer) ListenAndServe() error {
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.shutdown {
		f.shutdown = true
		close(f.stopped)
	}
	return nil
}

func TestHTTPServerServiceShutsDown(t *testing.T) {
	srv := &fakeServer{stopped: make(chan struct{})}
	svc := NewHTTPServerService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	if !srv.shutdown {
		t.Error("server should have been shut down")
	}
}
