package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wrenware/packhost/errors"
	"github.com/wrenware/packhost/handler"
)

func TestBridgeAddBeforeInitialize(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	err := Add("0xAAAA", newFactory("0xAAAA"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotInitialized))

	_, found := GetHandler("0xAAAA")
	assert.False(t, found)
}

func TestBridgeReplaysPendingOnInitialize(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	f := newFactory("0xAAAA")
	_ = Add("0xAAAA", f)

	m := NewManager(nil, nil)
	defer m.Close()
	require.NoError(t, Initialize(m))

	got, found := GetHandler("0xAAAA")
	require.True(t, found)
	assert.NotNil(t, got)
	assert.Equal(t, 1, m.Count())
}

func TestBridgeAddAfterInitialize(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	m := NewManager(nil, nil)
	defer m.Close()
	require.NoError(t, Initialize(m))

	require.NoError(t, Add("0xBBBB", newFactory("0xBBBB")))

	_, found := GetHandler("0xBBBB")
	assert.True(t, found)

	// Identifier lookups are case-normalized.
	_, found = GetHandler("0xbbbb")
	assert.True(t, found)
}

func TestBridgeAddConflictWithDiscoveredModule(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	m := NewManager(nil, nil)
	defer m.Close()
	require.NoError(t, Initialize(m))

	// A discovered module already owns the identifier.
	_, err := m.RegisterDirect(context.Background(), testDescriptor("discovered"),
		map[string]handler.Factory{"0xAAAA": newFactory("0xAAAA")})
	require.NoError(t, err)

	err = Add("0xAAAA", newFactory("0xAAAA"))
	require.Error(t, err)
	assert.True(t, errors.IsConflictError(err))
}

func TestBridgeAddIdempotentPerCaller(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	m := NewManager(nil, nil)
	defer m.Close()
	require.NoError(t, Initialize(m))

	// Re-adding the same identifier from the same package is a no-op.
	require.NoError(t, Add("0xAAAA", newFactory("0xAAAA")))
	require.NoError(t, Add("0xAAAA", newFactory("0xAAAA")))
	assert.Equal(t, 1, m.Count())
}

func TestBridgeRemovePending(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	_ = Add("0xAAAA", newFactory("0xAAAA"))

	assert.True(t, Remove("0xaaaa"))
	assert.False(t, Remove("0xAAAA"))

	// The removed record must not resurface on initialize.
	m := NewManager(nil, nil)
	defer m.Close()
	require.NoError(t, Initialize(m))
	assert.Equal(t, 0, m.Count())
}

func TestBridgeRemoveAfterInitialize(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	m := NewManager(nil, nil)
	defer m.Close()
	require.NoError(t, Initialize(m))

	require.NoError(t, Add("0xAAAA", newFactory("0xAAAA")))
	assert.True(t, Remove("0xAAAA"))

	_, found := GetHandler("0xAAAA")
	assert.False(t, found)

	// A fully-unclaimed synthetic registration disappears entirely.
	assert.Equal(t, 0, m.Count())
}

func TestBridgeInvalidArguments(t *testing.T) {
	resetBridge()
	t.Cleanup(resetBridge)

	assert.Error(t, Add("", newFactory("x")))
	assert.Error(t, Add("0xAAAA", nil))
	assert.Error(t, Initialize(nil))
}
