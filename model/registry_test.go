package model

import (
	"testing"

	"github.com/hupe1980/chatmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	a := NewMockModel("gpt-4o-mini", "openai")
	b := NewMockModel("claude", "anthropic")
	r := NewRegistry(a)
	r.Register("sonnet", b)

	got, err := r.Get("gpt-4o-mini")
	require.NoError(t, err)
	assert.Same(t, a, got)

	got, err = r.Get("sonnet")
	require.NoError(t, err)
	assert.Same(t, b, got)

	assert.Equal(t, []string{"gpt-4o-mini", "sonnet"}, r.Names())
}

func TestRegistryUnknownModel(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nonexistent-model")
	require.ErrorIs(t, err, core.ErrUnknownModel)
	assert.Contains(t, err.Error(), "nonexistent-model")
}
