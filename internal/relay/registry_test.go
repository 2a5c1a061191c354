package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigRejectsDuplicateLockIDsAcrossDevices(t *testing.T) {
	cfg := Config{
		"10.0.0.1": {BoardCount: 1, Locks: []LockMapping{{ID: "front-door", Board: 0, Lock: 1}}},
		"10.0.0.2": {BoardCount: 1, Locks: []LockMapping{{ID: "front-door", Board: 0, Lock: 2}}},
	}

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfigInvalid)
}

func TestValidateConfigRejectsOutOfRangeLock(t *testing.T) {
	cfg := Config{
		"10.0.0.1": {BoardCount: 1, Locks: []LockMapping{{ID: "x", Board: 0, Lock: 49}}},
	}
	assert.ErrorIs(t, ValidateConfig(cfg), ErrConfigInvalid)
}

func TestValidateConfigRejectsOutOfRangeBoard(t *testing.T) {
	cfg := Config{
		"10.0.0.1": {BoardCount: 1, Locks: []LockMapping{{ID: "x", Board: 1, Lock: 1}}},
	}
	assert.ErrorIs(t, ValidateConfig(cfg), ErrConfigInvalid)
}

func TestValidateConfigAcceptsWellFormedConfig(t *testing.T) {
	cfg := Config{
		"10.0.0.1": {BoardCount: 2, Locks: []LockMapping{
			{ID: "front-door", Board: 0, Lock: 1},
			{ID: "back-door", Board: 1, Lock: 48},
		}},
	}
	assert.NoError(t, ValidateConfig(cfg))
}

func TestRegistryResolveUnknownLockIsNotFound(t *testing.T) {
	r := NewRegistry()
	_, _, _, err := r.Resolve("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryInstallThenResolve(t *testing.T) {
	r := NewRegistry()
	desc := DeviceDescriptor{BoardCount: 1, Locks: []LockMapping{{ID: "front-door", Board: 0, Lock: 5}}}

	session := NewSession("10.0.0.1", nil)
	r.Install("10.0.0.1", desc, session)

	got, board, lock, err := r.Resolve("front-door")
	require.NoError(t, err)
	assert.Same(t, session, got)
	assert.Equal(t, 0, board)
	assert.Equal(t, 5, lock)
	assert.True(t, r.Has("10.0.0.1"))
}
