package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// SiteOverride is a locally-authored fallback for a Site document, used when
// the Site Config Reader (C13) has never successfully fetched a site and so
// has no cached copy to fall back to. Operators seed this file for local
// development and for sites that must keep working through an extended
// Supabase outage.
type SiteOverride struct {
	Name            string `yaml:"name"`
	Active          bool   `yaml:"active"`
	EntryGraceMin   int    `yaml:"entry_grace_minutes"`
	ExitGraceMin    int    `yaml:"exit_grace_minutes"`
	OverstayGraceMin int   `yaml:"overstay_grace_minutes"`
	Enforcement     string `yaml:"enforcement_type"`
}

// SiteOverridesConfig is the on-disk shape of the overrides file: one entry
// per site ID.
type SiteOverridesConfig struct {
	Sites map[string]SiteOverride `yaml:"sites"`
}

// OverridesManager holds the locally-authored site overrides and serves them
// to siteconfig.Reader as a seed for sites it has never fetched.
type OverridesManager struct {
	mu       sync.RWMutex
	overrides map[string]SiteOverride
}

// NewOverridesManager loads the overrides file. A missing file is not an
// error: it simply means no local fallback is configured.
func NewOverridesManager(path string) (*OverridesManager, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &OverridesManager{overrides: make(map[string]SiteOverride)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var oc SiteOverridesConfig
	if err := yaml.NewDecoder(f).Decode(&oc); err != nil {
		return nil, err
	}
	if oc.Sites == nil {
		oc.Sites = make(map[string]SiteOverride)
	}
	return &OverridesManager{overrides: oc.Sites}, nil
}

// Get returns the locally-authored override for siteID, if one was
// configured.
func (m *OverridesManager) Get(siteID string) (SiteOverride, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ov, ok := m.overrides[siteID]
	return ov, ok
}

// Reload re-reads the overrides file in place, letting an operator push a
// new fallback set without a process restart.
func (m *OverridesManager) Reload(path string) error {
	fresh, err := NewOverridesManager(path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.overrides = fresh.overrides
	m.mu.Unlock()
	return nil
}
