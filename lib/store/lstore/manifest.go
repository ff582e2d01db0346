package lstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ValentinKolb/jstore/lib/db"
	"github.com/ValentinKolb/jstore/lib/document"
	"gopkg.in/yaml.v3"
)

// --------------------------------------------------------------------------
// Store Manifest
// --------------------------------------------------------------------------

const (
	// ManifestFile is the name of the manifest inside a store location
	ManifestFile = "jstore.yaml"
	// FormatVersion is the on-disk format written by this version
	FormatVersion = 1
)

// Manifest records the parameters a store was created with.
// They are fixed for the lifetime of the store.
type Manifest struct {
	FormatVersion int               `yaml:"format_version"`
	Engine        db.Implementation `yaml:"engine"`
	KeyMode       string            `yaml:"key_mode"`
	Created       time.Time         `yaml:"created"`
}

// Mode returns the parsed key mode of the manifest
func (m *Manifest) Mode() (document.KeyMode, error) {
	return document.ParseKeyMode(m.KeyMode)
}

// ReadManifest reads the manifest of the store at location.
// It returns nil and no error if the location holds no store.
func ReadManifest(location string) (*Manifest, error) {
	raw, err := os.ReadFile(filepath.Join(location, ManifestFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := yaml.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported store format version %d (expected %d)", m.FormatVersion, FormatVersion)
	}
	if _, err := db.ParseImplementation(string(m.Engine)); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if _, err := m.Mode(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return m, nil
}

// WriteManifest writes m to the store at location (temporary file and rename)
func WriteManifest(location string, m *Manifest) error {
	raw, err := yaml.Marshal(m)
	if err != nil {
		return err
	}

	tmp := filepath.Join(location, ManifestFile+".tmp")
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(location, ManifestFile))
}
