package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/anpr/compliance-core/internal/config"
	"github.com/stretchr/testify/require"
)

func TestNewOverridesManagerMissingFileIsNotAnError(t *testing.T) {
	m, err := config.NewOverridesManager(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)

	_, ok := m.Get("site-1")
	require.False(t, ok)
}

func TestNewOverridesManagerLoadsSites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	contents := `
sites:
  site-1:
    name: "Riverside Car Park"
    active: true
    entry_grace_minutes: 15
    exit_grace_minutes: 15
    overstay_grace_minutes: 20
    enforcement_type: "PAY_AND_DISPLAY"
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	m, err := config.NewOverridesManager(path)
	require.NoError(t, err)

	ov, ok := m.Get("site-1")
	require.True(t, ok)
	require.Equal(t, "Riverside Car Park", ov.Name)
	require.Equal(t, 15, ov.EntryGraceMin)

	_, ok = m.Get("no-such-site")
	require.False(t, ok)
}

func TestOverridesManagerReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overrides.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sites:\n  site-1:\n    active: true\n"), 0o644))

	m, err := config.NewOverridesManager(path)
	require.NoError(t, err)
	_, ok := m.Get("site-2")
	require.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("sites:\n  site-2:\n    active: true\n"), 0o644))
	require.NoError(t, m.Reload(path))

	_, ok = m.Get("site-2")
	require.True(t, ok)
}
