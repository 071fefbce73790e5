package httpd

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anvil-systems/weblet/internal/concurrency"
)

func startTestServer(t *testing.T, router *Router) *Server {
	t.Helper()
	pool := concurrency.NewTaskPool(2, 8)
	srv := NewServer("127.0.0.1:0", pool, router, nil, ErrorPages{}, map[string]string{"ENV": "test"})
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		srv.Stop()
		pool.Stop()
	})
	return srv
}

func sendRaw(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	out, err := io.ReadAll(bufio.NewReader(conn))
	require.NoError(t, err)
	return string(out)
}

func TestServerDispatchesRegisteredRoute(t *testing.T) {
	rt := NewRouter()
	rt.Register("/hello/{name}", func(cfg map[string]string, _ *Request, params map[string]string) *Response {
		return PlainText(200, "hi "+params["name"]+" env="+cfg["ENV"])
	})
	srv := startTestServer(t, rt)

	out := sendRaw(t, srv.Addr(), "GET /hello/ada HTTP/1.1\r\n\r\n")
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "hi ada env=test")
}

func TestServerReturns404ForUnmatchedRoute(t *testing.T) {
	srv := startTestServer(t, NewRouter())
	out := sendRaw(t, srv.Addr(), "GET /missing HTTP/1.1\r\n\r\n")
	assert.Contains(t, out, "HTTP/1.1 404 Not Found")
}

func TestServerReturns400ForMalformedRequest(t *testing.T) {
	srv := startTestServer(t, NewRouter())
	out := sendRaw(t, srv.Addr(), "NOTAVALIDLINE\r\n\r\n")
	assert.Contains(t, out, "HTTP/1.1 400 Bad Request")
}

func TestServerContainsHandlerPanicAs500(t *testing.T) {
	rt := NewRouter()
	rt.Register("/boom", func(map[string]string, *Request, map[string]string) *Response {
		panic("kaboom")
	})
	srv := startTestServer(t, rt)
	out := sendRaw(t, srv.Addr(), "GET /boom HTTP/1.1\r\n\r\n")
	assert.Contains(t, out, "HTTP/1.1 500 Internal Server Error")
}
