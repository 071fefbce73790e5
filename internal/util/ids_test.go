package util

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequestIDIsValidUUID(t *testing.T) {
	id := NewRequestID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
}

func TestNewJobIDIsValidUUID(t *testing.T) {
	id := NewJobID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)
}

func TestNewRequestIDUniquenessSample(t *testing.T) {
	seen := make(map[string]struct{}, 256)
	for i := 0; i < 256; i++ {
		id := NewRequestID()
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id generated: %q", id)
		seen[id] = struct{}{}
	}
}

func TestNewRequestIDTwoCallsDiffer(t *testing.T) {
	a := NewRequestID()
	b := NewRequestID()
	assert.NotEqual(t, a, b)
}
