package testutils

import (
	"os"
	"testing"

	"gopkg.in/yaml.v2"
)

// LoadYAML decodes the YAML file at path into dst, the way the teacher's
// FakePools fixture loader decodes pool fixtures for zfs tests.
func LoadYAML(t *testing.T, path string, dst interface{}) {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("couldn't read fixture %q: %v", path, err)
	}
	if err := yaml.Unmarshal(data, dst); err != nil {
		t.Fatalf("couldn't decode fixture %q: %v", path, err)
	}
}
