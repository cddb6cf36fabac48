package modules

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Parse decodes a single YAML manifest.
func Parse(data []byte) (Module, error) {
	var m Module
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		return Module{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	m.Slug = strings.TrimSpace(m.Slug)
	if err := validate.Struct(m); err != nil {
		return Module{}, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}
	if m.Name == "" {
		m.Name = m.Slug
	}
	return m, nil
}

// LoadDir reads every *.yaml and *.yml manifest under dir in lexical filename
// order. A missing directory yields no modules.
func LoadDir(dir string) ([]Module, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("modules: read dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	mods := make([]Module, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("modules: read %s: %w", name, err)
		}
		m, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("modules: %s: %w", name, err)
		}
		mods = append(mods, m)
	}
	return mods, nil
}
