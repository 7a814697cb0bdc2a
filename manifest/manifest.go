// Package manifest reads and writes the sidecar files that the generator emits
// next to generated entities. A manifest lists the generated types of one
// package together with their marker values, so that later build phases can
// discover generated entities without scanning sources or relying on runtime
// registration.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the manifest file in a package directory.
const FileName = "entitybug.manifest.yaml"

// Version is the manifest format version written by this package.
const Version = 1

// Manifest describes the generated entities of one package.
type Manifest struct {
	Version  int     `yaml:"version"`
	Package  string  `yaml:"package"`
	Entities []Entry `yaml:"entities"`
}

// Entry describes a single generated entity.
type Entry struct {
	// Type is the qualified name of the generated type.
	Type string `yaml:"type"`
	// Name and PersistenceUnit are the values of the type's marker.
	Name            string `yaml:"name"`
	PersistenceUnit string `yaml:"persistenceUnit,omitempty"`
	Table           string `yaml:"table,omitempty"`
	// Source is the name of the generated file, relative to the manifest.
	Source string `yaml:"source"`
	// Origin is the qualified name of the type that requested generation.
	Origin string `yaml:"origin,omitempty"`
}

// Sort orders entries by type name, which makes encoded manifests
// deterministic.
func (m *Manifest) Sort() {
	sort.Slice(m.Entities, func(i, j int) bool {
		return m.Entities[i].Type < m.Entities[j].Type
	})
}

// Encode writes the manifest as YAML.
func Encode(w io.Writer, m *Manifest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return enc.Close()
}

// Marshal returns the YAML encoding of the manifest.
func Marshal(m *Manifest) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a manifest from YAML.
func Decode(r io.Reader) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty manifest")
		}
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	for i, e := range m.Entities {
		if e.Type == "" || e.Name == "" {
			return nil, fmt.Errorf("manifest entry %d: type and name are required", i)
		}
	}
	return &m, nil
}

// Read reads the manifest at the given path.
func Read(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Write writes the manifest to the given path.
func Write(path string, m *Manifest) error {
	data, err := Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Located is a manifest together with the location it was read from.
type Located struct {
	*Manifest
	// Path is the manifest file's path.
	Path string
}

// Dir returns the directory that contains the manifest.
func (l Located) Dir() string {
	return filepath.Dir(l.Path)
}

// Find walks the tree rooted at root and reads every manifest in it. Vendor
// directories and directories whose names start with "." or "_" are skipped.
// Results are ordered by path.
func Find(root string) ([]Located, error) {
	var res []Located
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (name == "vendor" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_")) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != FileName {
			return nil
		}
		m, err := Read(path)
		if err != nil {
			return err
		}
		res = append(res, Located{Manifest: m, Path: path})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Path < res[j].Path
	})
	return res, nil
}
