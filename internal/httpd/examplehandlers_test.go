package httpd

// Fixture handlers standing in for the teacher's internal/handlers demo
// endpoints (isprime, echo) — not shipped product surface, just realistic
// Handler implementations to exercise the router and dynamic dispatch path
// in tests.

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func isPrimeHandler(_ map[string]string, _ *Request, params map[string]string) *Response {
	n, err := strconv.Atoi(params["n"])
	if err != nil {
		return PlainText(400, "bad n")
	}
	return PlainText(200, fmt.Sprintf("%t", isPrime(n)))
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for i := 2; i*i <= n; i++ {
		if n%i == 0 {
			return false
		}
	}
	return true
}

func echoHandler(_ map[string]string, _ *Request, params map[string]string) *Response {
	return PlainText(200, params["text"])
}

func TestRouterDispatchesExampleHandlers(t *testing.T) {
	rt := NewRouter()
	rt.Register("/prime/{n}", isPrimeHandler)
	rt.Register("/echo/{text}", echoHandler)

	h, params, ok := rt.Match("/prime/17")
	require.True(t, ok)
	resp := h(nil, nil, params)
	require.Equal(t, "true", string(resp.Body))

	h, params, ok = rt.Match("/echo/hello")
	require.True(t, ok)
	resp = h(nil, nil, params)
	require.Equal(t, "hello", string(resp.Body))
}
