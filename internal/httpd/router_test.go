package httpd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterMatchesPlaceholderAndCapturesParams(t *testing.T) {
	rt := NewRouter()
	rt.Register("/users/{id}", func(_ map[string]string, _ *Request, params map[string]string) *Response {
		return PlainText(200, "user:"+params["id"])
	})

	h, params, ok := rt.Match("/users/42")
	require.True(t, ok)
	assert.Equal(t, "42", params["id"])
	resp := h(nil, nil, params)
	assert.Equal(t, "user:42", string(resp.Body))
}

func TestRouterFirstRegistrationWins(t *testing.T) {
	rt := NewRouter()
	rt.Register("/a/{x}", func(map[string]string, *Request, map[string]string) *Response {
		return PlainText(200, "first")
	})
	rt.Register("/a/{x}", func(map[string]string, *Request, map[string]string) *Response {
		return PlainText(200, "second")
	})

	h, _, ok := rt.Match("/a/anything")
	require.True(t, ok)
	assert.Equal(t, "first", string(h(nil, nil, nil).Body))
}

func TestRouterPatternIsAnchoredBothEnds(t *testing.T) {
	rt := NewRouter()
	rt.Register("/exact", func(map[string]string, *Request, map[string]string) *Response {
		return PlainText(200, "ok")
	})

	_, _, ok := rt.Match("/exact/trailing")
	assert.False(t, ok)
	_, _, ok = rt.Match("prefix/exact")
	assert.False(t, ok)
}

func TestRouterEmptyCaptureIsOmittedFromParams(t *testing.T) {
	rt := NewRouter()
	rt.Register("/files/{name}", func(map[string]string, *Request, map[string]string) *Response {
		return PlainText(200, "ok")
	})

	_, params, ok := rt.Match("/files/")
	require.True(t, ok)
	_, present := params["name"]
	assert.False(t, present)
}

func TestRouterNoMatchReturnsFalse(t *testing.T) {
	rt := NewRouter()
	_, _, ok := rt.Match("/nope")
	assert.False(t, ok)
}

func TestRouterPlaceholderDoesNotCrossSlash(t *testing.T) {
	rt := NewRouter()
	rt.Register("/a/{x}/b", func(map[string]string, *Request, map[string]string) *Response {
		return PlainText(200, "ok")
	})
	_, _, ok := rt.Match("/a/one/two/b")
	assert.False(t, ok)
}
