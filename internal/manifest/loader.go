package manifest

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"pixelsense/internal/logging"

	"gopkg.in/yaml.v3"
)

// embeddedManifests contains the built-in wave manifests baked into the
// binary, so a fresh install analyzes images with no filesystem setup.
//
//go:embed defaults
var embeddedManifests embed.FS

// LoadEmbedded parses the baked-in default manifests.
func LoadEmbedded() ([]*WaveManifest, error) {
	log := logging.Get(logging.CategoryConfig)
	var out []*WaveManifest

	err := fs.WalkDir(embeddedManifests, "defaults", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isYAML(path) {
			return nil
		}
		data, err := embeddedManifests.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read embedded manifest %s: %w", path, err)
		}
		m, err := parseManifest(data, path)
		if err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded manifests: %w", err)
	}

	log.Debug("loaded %d embedded manifests", len(out))
	return out, nil
}

// LoadDirectory parses every YAML manifest in dir. A missing directory is
// not an error: the embedded defaults remain in force.
func LoadDirectory(dir string) ([]*WaveManifest, error) {
	log := logging.Get(logging.CategoryConfig)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", dir, err)
	}

	var out []*WaveManifest
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn("failed to read manifest %s: %v", path, err)
			continue
		}
		m, err := parseManifest(data, path)
		if err != nil {
			log.Warn("skipping invalid manifest %s: %v", path, err)
			continue
		}
		out = append(out, m)
	}

	log.Info("loaded %d manifests from %s", len(out), dir)
	return out, nil
}

// parseManifest decodes and validates one manifest document. Unknown fields
// are ignored (logged at debug) to keep older binaries forward-compatible
// within a schema version.
func parseManifest(data []byte, source string) (*WaveManifest, error) {
	var probe map[string]interface{}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", source, err)
	}
	for key := range probe {
		if !knownManifestFields[key] {
			logging.Get(logging.CategoryConfig).Debug("manifest %s: ignoring unknown field %q", source, key)
		}
	}

	m := &WaveManifest{Enabled: true, SchemaVersion: SchemaVersion}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", source, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

var knownManifestFields = map[string]bool{
	"schema_version": true, "name": true, "priority": true, "enabled": true,
	"is_optional": true, "scope": true, "triggers": true, "emits": true,
	"listens": true, "cache": true, "config": true, "lane": true,
	"escalation": true, "trigger_timeout": true, "execution_timeout": true,
	"params": true, "tags": true,
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
