package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the on-disk catalog fixture format.
type File struct {
	Courses []Course `yaml:"courses"`
}

// ParseFile decodes a YAML catalog document.
func ParseFile(data []byte) ([]Course, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return f.Courses, nil
}

// LoadFile reads a YAML catalog document from path.
func LoadFile(path string) ([]Course, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseFile(data)
}
