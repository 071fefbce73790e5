package httpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/anvil-systems/weblet/internal/concurrency"
	"github.com/anvil-systems/weblet/internal/util"
)

// ErrWeblet maps onto spec.md §7's WebletError: socket/bind/listen
// failure at startup.
var ErrWeblet = errors.New("httpd: server startup failed")

// ErrorPages maps an HTTP status code to a file path (spec.md §4.9).
type ErrorPages map[int]string

// ServerMetrics is the minimal observability surface HttpServer reports
// into; internal/obs.ServerMetrics satisfies it with Prometheus
// collectors.
type ServerMetrics interface {
	IncRequest(status int)
	ObserveDuration(seconds float64)
}

type noopServerMetrics struct{}

func (noopServerMetrics) IncRequest(int)          {}
func (noopServerMetrics) ObserveDuration(float64) {}

// Server binds a single listener, accepts connections on its own pool
// task, and dispatches each inline within that task (spec.md §4.11).
type Server struct {
	addr       string
	pool       *concurrency.TaskPool
	router     *Router
	static     *StaticServer
	registry   *DynamicRegistry
	errorPages ErrorPages
	config     map[string]string

	log     Logger
	metrics ServerMetrics

	mu       sync.Mutex
	listener net.Listener
}

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithServerLogger injects a logger for ingestion/dispatch failures.
func WithServerLogger(l Logger) ServerOption { return func(s *Server) { s.log = l } }

// WithServerMetrics injects a Prometheus-backed metrics sink.
func WithServerMetrics(m ServerMetrics) ServerOption { return func(s *Server) { s.metrics = m } }

// WithRegistry attaches a DynamicRegistry whose loaded handles are
// released when the server stops.
func WithRegistry(r *DynamicRegistry) ServerOption { return func(s *Server) { s.registry = r } }

// NewServer builds a Server. config is the dotenv-style snapshot passed
// verbatim to every handler (spec.md §6).
func NewServer(addr string, pool *concurrency.TaskPool, router *Router, static *StaticServer,
	errorPages ErrorPages, config map[string]string, opts ...ServerOption) *Server {
	s := &Server{
		addr: addr, pool: pool, router: router, static: static,
		errorPages: errorPages, config: config,
		log: discardLogger{}, metrics: noopServerMetrics{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// controlReusePort sets SO_REUSEADDR and SO_REUSEPORT before bind, per
// spec.md §4.11.
func controlReusePort(_, _ string, c interface {
	Control(func(fd uintptr)) error
}) error {
	return c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
}

// Start creates the listening socket (host "localhost"/"127.0.0.1" is
// rewritten to an empty host, which binds INADDR_ANY) and submits the accept loop
// onto the server's own task pool (spec.md §4.11). Socket/bind/listen
// failures are returned wrapped in ErrWeblet.
func (s *Server) Start() error {
	addr := s.addr
	if host, port, err := net.SplitHostPort(addr); err == nil && (host == "localhost" || host == "127.0.0.1") {
		addr = net.JoinHostPort("", port)
	}
	lc := net.ListenConfig{Control: controlReusePort}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWeblet, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	return s.pool.Submit(func() error {
		return s.acceptLoop(ln)
	})
}

// Addr reports the listener's actual bound address; useful when addr was
// passed as ":0" and the OS chose the port.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// acceptLoop accepts connections until the listener errors (which Stop
// causes deliberately by closing it), dispatching each inline.
func (s *Server) acceptLoop(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return nil // listener closed: loop terminates, not a failure
		}
		s.handleConn(conn)
	}
}

// Stop closes the listening socket, which unblocks Accept and ends the
// accept task, then waits for the pool to drain (spec.md §4.11).
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln != nil {
		ln.Close()
	}
	s.pool.WaitIdle()
	if s.registry != nil {
		s.registry.Close()
	}
}

// handleConn stamps every response with an X-Request-Id (spec.md §3.3,
// the same distinction the teacher draws with its X-Request-Id trace
// header) and logs method/path/status/duration once the response is
// ready, regardless of whether parsing succeeded.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	start := time.Now()
	requestID := util.NewRequestID()

	reader := bufio.NewReader(conn)
	req, err := ParseRequest(context.Background(), reader)
	if err != nil {
		resp := s.errorResponse(400, err.Error()).WithHeader("X-Request-Id", requestID)
		s.finishRequest("", "", resp.Status, requestID, start)
		if werr := resp.WriteTo(conn); werr != nil {
			s.log.Errorw("response write failed", "error", werr.Error(), "request_id", requestID)
		}
		return
	}

	resp := s.dispatch(req).WithHeader("X-Request-Id", requestID)
	s.finishRequest(req.Method, req.Path, resp.Status, requestID, start)
	if err := resp.WriteTo(conn); err != nil {
		s.log.Errorw("response write failed", "error", err.Error(), "request_id", requestID)
	}
}

// finishRequest records the metrics and structured log line for one
// completed request (spec.md §3.3's "duration" + request-id surface).
func (s *Server) finishRequest(method, path string, status int, requestID string, start time.Time) {
	duration := time.Since(start)
	s.metrics.IncRequest(status)
	s.metrics.ObserveDuration(duration.Seconds())
	s.log.Infow("request",
		"method", method, "path", path, "status", status,
		"request_id", requestID, "duration_ms", duration.Milliseconds())
}

// dispatch implements routing fallback order (spec.md §4.7) and recovers
// from handler panics as a contained 500 (spec.md §7 HttpInternal).
func (s *Server) dispatch(req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("handler panic contained", "error", fmt.Sprintf("%v", r))
			resp = s.errorResponse(500, "handler panicked")
		}
	}()

	if handler, params, ok := s.router.Match(req.Path); ok {
		req.Params = params
		if out := handler(s.config, req, params); out != nil {
			return out
		}
		return s.errorResponse(500, "handler returned no response")
	}

	if s.static != nil {
		if out, ok := s.static.Serve(req.Path); ok {
			return out
		}
	}

	return s.errorResponse(404, "An unexpected error occurred.")
}

// errorResponse implements §4.9: serve a registered error-page file when
// present, else synthesize the short plain-text body. A served error
// page uses the "Error Page" reason phrase rather than the status's
// standard reason text.
func (s *Server) errorResponse(status int, message string) *Response {
	if path, ok := s.errorPages[status]; ok {
		if body, err := os.ReadFile(path); err == nil {
			resp := HTML(status, body)
			resp.Reason = "Error Page"
			return resp
		}
	}
	return ErrorBody(status, message)
}
