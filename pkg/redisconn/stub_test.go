package redisconn

import (
	"bufio"
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/yndnr/rmap-go/pkg/resp"
)

// stubServer is a scripted RESP server for connection tests.
//
//	PING          +PONG
//	AUTH pw       +OK or -WRONGPASS
//	ECHO x        bulk x
//	FAIL          -ERR boom
//	BLOCK         never replies
//	CLOSE         closes the connection without replying
type stubServer struct {
	ln       net.Listener
	password string

	accepted atomic.Int64

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

func startStub(t *testing.T, password string) *stubServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &stubServer{ln: ln, password: password, conns: make(map[net.Conn]struct{})}

	s.wg.Add(1)
	go s.acceptLoop()

	t.Cleanup(s.close)
	return s
}

func (s *stubServer) addr() string {
	return s.ln.Addr().String()
}

func (s *stubServer) acceptLoop() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(c)
	}
}

func (s *stubServer) serve(c net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()
		_ = c.Close()
	}()

	br := bufio.NewReader(c)
	bw := bufio.NewWriter(c)
	authed := s.password == ""

	for {
		args, err := resp.ReadCommand(br)
		if err != nil {
			return
		}
		if len(args) == 0 {
			continue
		}

		name := resp.NormalizeCommandName(args[0])
		if !authed && name != "AUTH" {
			_ = resp.WriteError(bw, "NOAUTH Authentication required.")
			_ = bw.Flush()
			continue
		}

		switch name {
		case "PING":
			_ = resp.WriteSimpleString(bw, "PONG")
		case "AUTH":
			if len(args) == 2 && string(args[1]) == s.password {
				authed = true
				_ = resp.WriteSimpleString(bw, "OK")
			} else {
				_ = resp.WriteError(bw, "WRONGPASS invalid password")
			}
		case "ECHO":
			_ = resp.WriteBulk(bw, args[1])
		case "FAIL":
			_ = resp.WriteError(bw, "ERR boom")
		case "BLOCK":
			continue
		case "CLOSE":
			return
		default:
			_ = resp.WriteError(bw, "ERR unknown command '"+name+"'")
		}
		if err := bw.Flush(); err != nil {
			return
		}
	}
}

func (s *stubServer) close() {
	_ = s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}
