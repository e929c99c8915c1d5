package redisconn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yndnr/rmap-go/pkg/resp"
)

func dialStub(t *testing.T, s *stubServer) *Conn {
	t.Helper()
	c, err := Dial(context.Background(), s.addr(), time.Second, 0)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestConn_Do(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)
	ctx := context.Background()

	v, err := c.Do(ctx, "PING")
	if err != nil {
		t.Fatalf("PING error = %v", err)
	}
	if err := v.Status("PONG"); err != nil {
		t.Error(err)
	}

	v, err = c.Do(ctx, "ECHO", []byte{0, 1, 2})
	if err != nil {
		t.Fatalf("ECHO error = %v", err)
	}
	if b, _ := v.Bytes(); string(b) != "\x00\x01\x02" {
		t.Errorf("ECHO = %q", b)
	}

	v, err = c.Do(ctx, "ECHO", 42)
	if err != nil {
		t.Fatalf("ECHO int error = %v", err)
	}
	if b, _ := v.Bytes(); string(b) != "42" {
		t.Errorf("ECHO int = %q", b)
	}
}

func TestConn_ErrorReplyKeepsConnUsable(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)
	ctx := context.Background()

	_, err := c.Do(ctx, "FAIL")
	var re *resp.Error
	if !errors.As(err, &re) {
		t.Fatalf("Do(FAIL) error = %v, want *resp.Error", err)
	}
	if re.Prefix() != "ERR" {
		t.Errorf("Prefix() = %q", re.Prefix())
	}
	if c.Err() != nil {
		t.Fatalf("Err() = %v after error reply, want nil", c.Err())
	}

	if _, err := c.Do(ctx, "PING"); err != nil {
		t.Errorf("PING after error reply: %v", err)
	}
}

func TestConn_TransportFaultIsSticky(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)
	ctx := context.Background()

	if _, err := c.Do(ctx, "CLOSE"); err == nil {
		t.Fatal("Do(CLOSE) error = nil, want transport fault")
	}
	if c.Err() == nil {
		t.Fatal("Err() = nil after transport fault")
	}
	if _, err := c.Do(ctx, "PING"); err == nil || !errors.Is(err, c.Err()) {
		t.Errorf("Do after fault error = %v, want sticky %v", err, c.Err())
	}
}

func TestConn_ContextCancel(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.Do(ctx, "BLOCK")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do(BLOCK) error = %v, want context.Canceled", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Errorf("cancel took %v", time.Since(start))
	}
	if c.Err() == nil {
		t.Error("Err() = nil after cancelled read")
	}
}

func TestConn_CancelAfterReplyDoesNotLeak(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)

	// Cancel as soon as Do registers its callback, and hold the callback
	// back so the reply is read before it runs.
	var started atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	afterFunc = func(ctx context.Context, f func()) func() bool {
		stop := context.AfterFunc(ctx, func() {
			time.Sleep(100 * time.Millisecond)
			started.Store(true)
			f()
		})
		cancel()
		return stop
	}
	t.Cleanup(func() { afterFunc = context.AfterFunc })

	if _, err := c.Do(ctx, "PING"); err != nil {
		t.Fatalf("PING error = %v", err)
	}
	if !started.Load() {
		t.Fatal("cancellation callback still running after Do returned")
	}
	afterFunc = context.AfterFunc

	v, err := c.Do(context.Background(), "ECHO", "next")
	if err != nil {
		t.Fatalf("ECHO after cancelled PING error = %v", err)
	}
	if b, _ := v.Bytes(); string(b) != "next" {
		t.Errorf("ECHO = %q", b)
	}
}

func TestConn_ContextDeadline(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Do(ctx, "BLOCK"); err == nil {
		t.Fatal("Do(BLOCK) error = nil, want timeout")
	}
	if c.Err() == nil {
		t.Error("Err() = nil after timed out read")
	}
}

func TestConn_ReadTimeout(t *testing.T) {
	s := startStub(t, "")
	c, err := Dial(context.Background(), s.addr(), time.Second, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	if _, err := c.Do(context.Background(), "PING"); err != nil {
		t.Fatalf("PING error = %v", err)
	}
	if _, err := c.Do(context.Background(), "BLOCK"); err == nil {
		t.Fatal("Do(BLOCK) error = nil, want read timeout")
	}
}

func TestConn_DoneContextSendsNothing(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Do(ctx, "PING"); !errors.Is(err, context.Canceled) {
		t.Fatalf("Do() error = %v, want context.Canceled", err)
	}
	if c.Err() != nil {
		t.Errorf("Err() = %v, want nil (nothing was sent)", c.Err())
	}
}

func TestConn_UnsupportedArg(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)

	_, err := c.Do(context.Background(), "ECHO", 1.5)
	if !errors.Is(err, ErrUnsupportedArg) {
		t.Fatalf("Do() error = %v, want ErrUnsupportedArg", err)
	}
	if c.Err() != nil {
		t.Errorf("Err() = %v, want nil", c.Err())
	}
}

func TestDial_Refused(t *testing.T) {
	s := startStub(t, "")
	addr := s.addr()
	s.close()

	if _, err := Dial(context.Background(), addr, 200*time.Millisecond, 0); err == nil {
		t.Fatal("Dial() to closed listener error = nil")
	}
}

func TestConn_Discard(t *testing.T) {
	s := startStub(t, "")
	c := dialStub(t, s)

	cause := errors.New("unwatch failed")
	c.Discard(cause)
	if !errors.Is(c.Err(), cause) {
		t.Fatalf("Err() = %v, want %v", c.Err(), cause)
	}
	if _, err := c.Do(context.Background(), "PING"); !errors.Is(err, cause) {
		t.Errorf("Do after Discard error = %v", err)
	}
}
