package simulator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnums(t *testing.T) {
	loc, err := ParseLocation("local")
	require.NoError(t, err)
	assert.Equal(t, LocationLocal, loc)

	_, err = ParseLocation("orbital")
	assert.Error(t, err)

	eec, err := ParseEecType("ActiveGate")
	require.NoError(t, err)
	assert.Equal(t, EecActiveGate, eec)

	_, err = ParseEecType("cluster")
	assert.Error(t, err)

	osType, err := ParseOsType("WINDOWS")
	require.NoError(t, err)
	assert.Equal(t, OsWindows, osType)

	_, err = ParseOsType("beos")
	assert.Error(t, err)
}

func TestNewSimulationConfig(t *testing.T) {
	target := &RemoteTarget{Name: "box", Address: "10.0.0.1", EecType: EecActiveGate, OsType: OsLinux}

	t.Run("local without target", func(t *testing.T) {
		cfg, err := NewSimulationConfig(LocationLocal, EecOneAgent, nil, true)
		require.NoError(t, err)
		assert.True(t, cfg.SendMetrics)
		assert.Nil(t, cfg.Target)
	})

	t.Run("remote requires target", func(t *testing.T) {
		_, err := NewSimulationConfig(LocationRemote, EecActiveGate, nil, false)
		assert.ErrorIs(t, err, ErrTargetRequired)
	})

	t.Run("remote with target", func(t *testing.T) {
		cfg, err := NewSimulationConfig(LocationRemote, EecActiveGate, target, false)
		require.NoError(t, err)
		assert.Equal(t, "box", cfg.Target.Name)
	})

	t.Run("local rejects target", func(t *testing.T) {
		_, err := NewSimulationConfig(LocationLocal, EecOneAgent, target, false)
		assert.Error(t, err)
	})
}

func TestDatasourcePath(t *testing.T) {
	dir, file := DatasourcePath(OsLinux, EecOneAgent, "prometheus")
	assert.Equal(t, "/opt/eec/oneagent/datasources/prometheus", dir)
	assert.Equal(t, "eecsourceprometheus", file)

	dir, file = DatasourcePath(OsWindows, EecActiveGate, "wmi")
	assert.Equal(t, "C:/Program Files/eec/activegate/datasources/wmi", dir)
	assert.Equal(t, "eecsourcewmi.exe", file)
}
