package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/simulator"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(t.TempDir(), logger.Default())
	require.NoError(t, err)
	return reg
}

func target(name, address string) simulator.RemoteTarget {
	return simulator.RemoteTarget{
		Name:       name,
		Address:    address,
		Username:   "eec",
		PrivateKey: "/home/eec/.ssh/id_ed25519",
		EecType:    simulator.EecActiveGate,
		OsType:     simulator.OsLinux,
	}
}

func TestRegisterAndList(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Register(target("hostA", "10.0.0.1")))
	require.NoError(t, reg.Register(target("hostB", "10.0.0.2")))

	targets, err := reg.List()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "hostA", targets[0].Name)
	assert.Equal(t, "hostB", targets[1].Name)
}

func TestRegisterUpsertsInPlace(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Register(target("hostA", "10.0.0.1")))
	require.NoError(t, reg.Register(target("hostB", "10.0.0.2")))
	require.NoError(t, reg.Register(target("hostA", "10.9.9.9")))

	targets, err := reg.List()
	require.NoError(t, err)
	require.Len(t, targets, 2)
	// The replaced entry keeps its position.
	assert.Equal(t, "hostA", targets[0].Name)
	assert.Equal(t, "10.9.9.9", targets[0].Address)
	assert.Equal(t, "hostB", targets[1].Name)
}

func TestDelete(t *testing.T) {
	reg := newTestRegistry(t)

	require.NoError(t, reg.Register(target("hostA", "10.0.0.1")))
	require.NoError(t, reg.Register(target("hostB", "10.0.0.2")))
	require.NoError(t, reg.Delete("hostA"))

	targets, err := reg.List()
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "hostB", targets[0].Name)
}

func TestDeleteAbsentIsNoOp(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(target("hostA", "10.0.0.1")))

	require.NoError(t, reg.Delete("no-such-target"))

	targets, err := reg.List()
	require.NoError(t, err)
	assert.Len(t, targets, 1)
}

func TestGet(t *testing.T) {
	reg := newTestRegistry(t)
	require.NoError(t, reg.Register(target("hostA", "10.0.0.1")))

	found, ok, err := reg.Get("hostA")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", found.Address)

	_, ok, err = reg.Get("hostB")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistrySurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	reg, err := New(dir, logger.Default())
	require.NoError(t, err)
	require.NoError(t, reg.Register(target("hostA", "10.0.0.1")))

	reopened, err := New(dir, logger.Default())
	require.NoError(t, err)
	targets, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "hostA", targets[0].Name)

	// The on-disk representation is a plain JSON array.
	raw, err := os.ReadFile(filepath.Join(dir, "targets.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"name": "hostA"`)
}
