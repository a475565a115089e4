// Package grpc is the JSON-over-TCP RPC used between translation memory
// instances: a "peer" backend is another instance reached through it.
//
// Each frame is one JSON object on its own line. A request carries an ID
// that its reply echoes, so a connection may have several requests in
// flight and replies may arrive out of order. A failed call replies with a
// message and a class code chosen by the server's ErrorCoder.
//
//	s := grpc.NewServer()
//	s.Register("TM.Lookup", lookup)
//	go s.Serve(":9400")
//
//	c := grpc.NewClient("localhost:9400", time.Second)
//	err := c.CallContext(ctx, "TM.Lookup", &req, &resp)
package grpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"
)

// HandlerFunc serves one method. The returned value is encoded as the
// reply's data.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// ErrorCoder maps a handler error to the code sent with it.
type ErrorCoder func(err error) string

// Codes the server itself emits.
const (
	CodeUnknownMethod = "unknown_method"
	CodeInternal      = "internal"
)

// maxInFlight bounds concurrent requests per connection.
const maxInFlight = 16

type request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type reply struct {
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

type Server struct {
	mu       sync.RWMutex
	methods  map[string]HandlerFunc
	coder    ErrorCoder
	listener net.Listener
	conns    map[net.Conn]struct{}

	base     context.Context
	stop     context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup
	log      *slog.Logger
}

func NewServer() *Server {
	base, stop := context.WithCancel(context.Background())
	return &Server{
		methods: make(map[string]HandlerFunc),
		conns:   make(map[net.Conn]struct{}),
		base:    base,
		stop:    stop,
		log:     slog.Default().With("component", "rpc-server"),
	}
}

func (s *Server) SetErrorCoder(coder ErrorCoder) {
	s.mu.Lock()
	s.coder = coder
	s.mu.Unlock()
}

// Register binds method, replacing any earlier handler.
func (s *Server) Register(method string, fn HandlerFunc) {
	s.mu.Lock()
	s.methods[method] = fn
	s.mu.Unlock()
}

func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc listen %s: %w", addr, err)
	}
	return s.ServeListener(ln)
}

// ServeListener accepts on ln until Stop. It returns nil after Stop.
func (s *Server) ServeListener(ln net.Listener) error {
	s.mu.Lock()
	if s.base.Err() != nil {
		s.mu.Unlock()
		return ln.Close()
	}
	s.listener = ln
	s.mu.Unlock()
	s.log.Info("accepting connections", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.base.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("accept failed", "error", err)
			continue
		}
		if !s.track(conn) {
			_ = conn.Close()
			return nil
		}
		s.wg.Go(func() { s.serveConn(conn) })
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base.Err() != nil {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) serveConn(conn net.Conn) {
	log := s.log.With("remote", conn.RemoteAddr().String())
	var (
		writeMu sync.Mutex
		enc     = json.NewEncoder(conn)
		slots   = semaphore.NewWeighted(maxInFlight)
		calls   sync.WaitGroup
	)
	defer func() {
		calls.Wait()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = conn.Close()
	}()

	dec := json.NewDecoder(bufio.NewReader(conn))
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return
		}
		if err := slots.Acquire(s.base, 1); err != nil {
			return
		}
		calls.Go(func() {
			defer slots.Release(1)
			rep := s.dispatch(req)
			writeMu.Lock()
			err := enc.Encode(rep)
			writeMu.Unlock()
			if err != nil {
				log.Debug("reply not delivered", "method", req.Method, "error", err)
			}
		})
	}
}

func (s *Server) dispatch(req request) (rep reply) {
	rep.ID = req.ID
	s.mu.RLock()
	fn, ok := s.methods[req.Method]
	coder := s.coder
	s.mu.RUnlock()
	if !ok {
		rep.Error, rep.Code = "unknown method "+req.Method, CodeUnknownMethod
		return rep
	}

	defer func() {
		if p := recover(); p != nil {
			s.log.Error("handler panicked", "method", req.Method, "panic", p)
			rep = reply{ID: req.ID, Error: fmt.Sprintf("internal error in %s", req.Method), Code: CodeInternal}
		}
	}()
	out, err := fn(s.base, req.Params)
	if err != nil {
		rep.Error = err.Error()
		if coder != nil {
			rep.Code = coder(err)
		}
		return rep
	}
	if rep.Data, err = json.Marshal(out); err != nil {
		rep.Error, rep.Code = "encoding reply: "+err.Error(), CodeInternal
	}
	return rep
}

// Stop closes the listener and every connection, cancels running handlers
// and waits for them. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.stop()
		s.mu.Lock()
		if s.listener != nil {
			_ = s.listener.Close()
		}
		for c := range s.conns {
			_ = c.Close()
		}
		s.mu.Unlock()
		s.wg.Wait()
		s.log.Info("rpc server stopped")
	})
}
