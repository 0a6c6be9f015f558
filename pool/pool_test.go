package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/corvid-labs/wireclient/netsock"
)

func fakeSocket(t *testing.T) *netsock.Socket {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return netsock.Wrap(client, netsock.KindPlain)
}

// fakeSocketPair returns a socket alongside the raw net.Conn for its peer,
// so a test can close the peer out from under it to force Probe to fail.
func fakeSocketPair(t *testing.T) (*netsock.Socket, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })
	return netsock.Wrap(client, netsock.KindPlain), server
}

func TestGlobalTotalTracksAcquireAndRelease(t *testing.T) {
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		return fakeSocket(t), nil
	})
	defer p.Close()

	if got := p.GlobalTotal(); got != 0 {
		t.Fatalf("GlobalTotal before any Acquire: got %d, want 0", got)
	}

	sock, err := p.Acquire(context.Background(), "host-a", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := p.GlobalTotal(); got != 1 {
		t.Errorf("GlobalTotal after one Acquire: got %d, want 1", got)
	}

	p.Release("host-a", sock)
	if got := p.GlobalTotal(); got != 1 {
		t.Errorf("GlobalTotal after Release (socket goes idle, not closed): got %d, want 1", got)
	}
}

func TestReapClosesDeadIdleSocketAndDecrementsTotal(t *testing.T) {
	sock, server := fakeSocketPair(t)
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		return sock, nil
	})
	defer p.Close()

	acquired, err := p.Acquire(context.Background(), "host-a", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release("host-a", acquired)

	// Kill the peer so the idle socket's liveness probe fails on reap.
	server.Close()

	if got := p.GlobalTotal(); got != 1 {
		t.Fatalf("GlobalTotal before Reap: got %d, want 1", got)
	}

	closed := p.Reap()
	if closed != 1 {
		t.Errorf("Reap: closed %d sockets, want 1", closed)
	}
	if got := p.GlobalTotal(); got != 0 {
		t.Errorf("GlobalTotal after Reap: got %d, want 0 (dead socket must free its slot)", got)
	}

	active, idle, _ := p.Stats("host-a")
	if active != 0 || idle != 0 {
		t.Errorf("Stats after Reap: active=%d idle=%d, want 0/0", active, idle)
	}
}

func TestAcquireDecrementsTotalWhenIdleSocketFailsProbe(t *testing.T) {
	sock, server := fakeSocketPair(t)
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		return sock, nil
	})
	defer p.Close()

	acquired, err := p.Acquire(context.Background(), "host-a", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	p.Release("host-a", acquired)
	server.Close()

	secondConnectCalls := 0
	p.connect = func(ctx context.Context, key string) (*netsock.Socket, error) {
		secondConnectCalls++
		return fakeSocket(t), nil
	}

	// The idle socket fails its probe and is discarded; Acquire must dial a
	// fresh one rather than returning the dead socket, and p.total must
	// reflect only the fresh connection, not both.
	if _, err := p.Acquire(context.Background(), "host-a", 0); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if secondConnectCalls != 1 {
		t.Errorf("expected Acquire to dial a fresh socket once, got %d calls", secondConnectCalls)
	}
	if got := p.GlobalTotal(); got != 1 {
		t.Errorf("GlobalTotal after probe-failure Acquire: got %d, want 1", got)
	}
}

func TestAcquireSpawnsConnectJob(t *testing.T) {
	calls := 0
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		calls++
		return fakeSocket(t), nil
	})
	defer p.Close()

	s, err := p.Acquire(context.Background(), "example.com:443", 0)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if s == nil {
		t.Fatal("expected a socket")
	}
	if calls != 1 {
		t.Fatalf("expected exactly one connect call, got %d", calls)
	}
	active, idle, total := p.Stats("example.com:443")
	if active != 1 || idle != 0 || total != 1 {
		t.Fatalf("unexpected stats: active=%d idle=%d total=%d", active, idle, total)
	}
}

func TestReleaseGoesIdleWithoutWaiters(t *testing.T) {
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		return fakeSocket(t), nil
	})
	defer p.Close()

	s, _ := p.Acquire(context.Background(), "k", 0)
	p.Release("k", s)

	active, idle, _ := p.Stats("k")
	if active != 0 || idle != 1 {
		t.Fatalf("expected socket to go idle, got active=%d idle=%d", active, idle)
	}
}

func TestReleaseHandsSocketDirectlyToWaiter(t *testing.T) {
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		return fakeSocket(t), nil
	})
	defer p.Close()

	// Fill the group to its cap with held sockets so the next Acquire
	// must wait instead of spawning a new connect job.
	held := make([]*netsock.Socket, maxGroupSockets)
	for i := range held {
		s, err := p.Acquire(context.Background(), "k", 0)
		if err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
		held[i] = s
	}

	waiterDone := make(chan *netsock.Socket, 1)
	go func() {
		s, err := p.Acquire(context.Background(), "k", 0)
		if err != nil {
			t.Errorf("waiter Acquire: %v", err)
			return
		}
		waiterDone <- s
	}()

	time.Sleep(20 * time.Millisecond) // let the waiter enqueue
	p.Release("k", held[0])

	select {
	case s := <-waiterDone:
		if s == nil {
			t.Fatal("expected a socket handed to the waiter")
		}
	case <-time.After(time.Second):
		t.Fatal("waiter never received a socket")
	}

	active, idle, _ := p.Stats("k")
	if idle != 0 {
		t.Fatalf("socket handed to waiter should never become idle, idle=%d", idle)
	}
	if active != maxGroupSockets {
		t.Fatalf("expected active to stay at cap, got %d", active)
	}
}

func TestAcquireRespectsGlobalCap(t *testing.T) {
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		return fakeSocket(t), nil
	})
	defer p.Close()
	p.total = maxGlobalTotal

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Acquire(ctx, "new-key", 0); err == nil {
		t.Fatal("expected Acquire to block and time out when global cap is reached")
	}
}

func TestAcquireCancelRemovesWaiter(t *testing.T) {
	p := New(func(ctx context.Context, key string) (*netsock.Socket, error) {
		return fakeSocket(t), nil
	})
	defer p.Close()
	p.total = maxGlobalTotal

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_, _ = p.Acquire(ctx, "k2", 0)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("canceled Acquire never returned")
	}

	p.mu.Lock()
	g := p.groups["k2"]
	n := g.wait.Len()
	p.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected waiter removed from queue, got %d remaining", n)
	}
}
