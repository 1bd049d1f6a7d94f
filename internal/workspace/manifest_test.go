package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extension.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadManifest(t *testing.T) {
	path := writeManifest(t, `name: custom:demo.extension
version: "1.2.3"
metrics:
  - key: demo.metric
prometheus:
  endpoints: []
`)

	m, err := ReadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, "custom:demo.extension", m.Name)
	assert.Equal(t, "1.2.3", m.Version)
	assert.Equal(t, path, m.Path)
	assert.Equal(t, []string{"name", "version", "metrics", "prometheus"}, m.Sections())
}

func TestReadManifestInvalidYaml(t *testing.T) {
	path := writeManifest(t, "name: [unclosed\n")
	_, err := ReadManifest(path)
	assert.Error(t, err)
}

func TestManifestDatasource(t *testing.T) {
	known := []string{"wmi", "snmp", "prometheus", "python"}

	tests := []struct {
		name     string
		manifest string
		want     string
	}{
		{
			name:     "single datasource section",
			manifest: "name: a\nprometheus:\n  endpoints: []\n",
			want:     "prometheus",
		},
		{
			name:     "first matching section wins",
			manifest: "name: a\nsnmp:\n  hosts: []\nprometheus:\n  endpoints: []\n",
			want:     "snmp",
		},
		{
			name:     "no datasource section",
			manifest: "name: a\nversion: \"1.0.0\"\n",
			want:     "unsupported",
		},
		{
			name:     "unknown section name",
			manifest: "name: a\ntelegraf:\n  inputs: []\n",
			want:     "unsupported",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := ReadManifest(writeManifest(t, tt.manifest))
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Datasource(known))
		})
	}
}
