package classify

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/TermuxHackz/Enhanced-IPSW-Firmware-Analysis-Tool/pkg/models"
)

// tableFile is the on-disk YAML shape.
type tableFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadTable reads a rule table from a YAML file. Decoding is strict: unknown
// fields imply version drift or a corrupted config, so we fail fast instead
// of classifying against half a table.
func LoadTable(path string) (*Table, error) {
	cleanPath := filepath.Clean(path)

	info, err := os.Stat(cleanPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("rule table file does not exist at %s", cleanPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat rule table: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("rule table path %s is not a regular file", cleanPath)
	}
	if info.Size() > models.MaxRuleTableSize {
		return nil, fmt.Errorf("rule table %s exceeds maximum size of %d bytes", cleanPath, models.MaxRuleTableSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open rule table: %w", err)
	}
	defer f.Close()

	var tf tableFile
	dec := yaml.NewDecoder(io.LimitReader(f, models.MaxRuleTableSize))
	dec.KnownFields(true)
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("failed to parse rule table: %w", err)
	}
	if len(tf.Rules) == 0 {
		return nil, fmt.Errorf("rule table %s contains no rules", cleanPath)
	}

	return NewTable(tf.Rules)
}

// WriteTable serializes a table as YAML, in rule order. Feeding the output
// back into LoadTable yields an equivalent table; this is how users seed a
// custom table from the built-in one.
func WriteTable(w io.Writer, t *Table) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(tableFile{Rules: t.Rules()})
}
