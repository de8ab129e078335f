// Package manifest reads the project's dependency manifest (package.json),
// hashes it for reinstall decisions, and builds the fallback import map
// injected into the preview's HTML head.
package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// FileName is the manifest's base name.
const FileName = "package.json"

// ErrInvalid marks manifests that fail shape validation.
var ErrInvalid = errors.New("invalid manifest")

// Manifest is the subset of package.json the orchestrator reads.
type Manifest struct {
	Name            string            `json:"name"`
	Version         string            `json:"version,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`
}

// Parse decodes and validates manifest content. A manifest must be a JSON
// object with a non-empty string name.
func Parse(content []byte) (*Manifest, error) {
	var raw map[string]interface{}
	if err := sonic.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrInvalid)
	}
	name, ok := raw["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: missing name", ErrInvalid)
	}

	var m Manifest
	if err := sonic.Unmarshal(content, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &m, nil
}

// Validate reports whether content is a usable manifest.
func Validate(content []byte) error {
	_, err := Parse(content)
	return err
}

// Hash returns the hex SHA-256 of the manifest bytes.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// IsManifest reports whether a normalized path is the root manifest of workDir.
func IsManifest(workDir, p string) bool {
	return p == strings.TrimSuffix(workDir, "/")+"/"+FileName
}

// Dependency is one declared package.
type Dependency struct {
	Name  string
	Range string
	Dev   bool
}

// AllDependencies returns runtime then dev dependencies, each sorted by name.
// A package listed in both keeps its runtime range.
func (m *Manifest) AllDependencies() []Dependency {
	deps := make([]Dependency, 0, len(m.Dependencies)+len(m.DevDependencies))
	for _, name := range sortedKeys(m.Dependencies) {
		deps = append(deps, Dependency{Name: name, Range: m.Dependencies[name]})
	}
	for _, name := range sortedKeys(m.DevDependencies) {
		if _, dup := m.Dependencies[name]; dup {
			continue
		}
		deps = append(deps, Dependency{Name: name, Range: m.DevDependencies[name], Dev: true})
	}
	return deps
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
