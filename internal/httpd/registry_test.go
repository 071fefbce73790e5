package httpd

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDynamicRegistryLoadUnknownIDReturnsStub(t *testing.T) {
	var errs int32
	reg := NewDynamicRegistry(func(error) { atomic.AddInt32(&errs, 1) }, nil)

	h := reg.Load(999, "Anything")
	resp := h(nil, nil, nil)
	assert.Equal(t, 500, resp.Status)
	assert.EqualValues(t, 1, atomic.LoadInt32(&errs))
}

func TestDynamicRegistryRegisterMissingFileFails(t *testing.T) {
	reg := NewDynamicRegistry(nil, nil)
	id := reg.Register("/nonexistent/path.so")
	assert.Equal(t, 0, id)
}

func TestDynamicRegistryCloseIsIdempotent(t *testing.T) {
	reg := NewDynamicRegistry(nil, nil)
	reg.Close()
	reg.Close()
}
