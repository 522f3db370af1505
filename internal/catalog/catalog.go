// Package catalog describes the dataset's columns: their meaning, type,
// question synonyms and whether the reconciler may write to them.
package catalog

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/enrich-cli/internal/record"
)

// Column is one catalog entry.
type Column struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	DataType    string   `yaml:"data_type,omitempty" json:"data_type,omitempty"`
	Synonyms    []string `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
	// ReadOnly columns are never written by the reconciler.
	ReadOnly bool `yaml:"read_only,omitempty" json:"read_only,omitempty"`
}

// Catalog is an ordered set of columns.
type Catalog struct {
	Columns []Column `yaml:"columns" json:"columns"`
}

// FromNames builds a catalog with bare entries for names.
func FromNames(names []string) *Catalog {
	c := &Catalog{}
	for _, n := range names {
		c.Columns = append(c.Columns, Column{Name: n})
	}
	return c
}

// LoadFile reads a YAML (or JSON) catalog. A bare list of columns is also
// accepted.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: read file")
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil || len(c.Columns) == 0 {
		var cols []Column
		if err2 := yaml.Unmarshal(data, &cols); err2 != nil {
			if err == nil {
				err = err2
			}
			return nil, eris.Wrapf(err, "catalog: parse %s", path)
		}
		c.Columns = cols
	}
	return c.normalized(), nil
}

func (c *Catalog) normalized() *Catalog {
	out := &Catalog{}
	seen := make(map[string]bool)
	for _, col := range c.Columns {
		col.Name = strings.TrimSpace(col.Name)
		key := strings.ToUpper(col.Name)
		if col.Name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out.Columns = append(out.Columns, col)
	}
	return out
}

// Names returns column names in catalog order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Columns))
	for _, col := range c.Columns {
		out = append(out, col.Name)
	}
	return out
}

// Writable returns the names of columns the reconciler may update.
func (c *Catalog) Writable() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, col := range c.Columns {
		if !col.ReadOnly {
			out = append(out, col.Name)
		}
	}
	return out
}

// Synonyms maps each lowercase synonym phrase to the column it names.
func (c *Catalog) Synonyms() map[string]string {
	out := make(map[string]string)
	if c == nil {
		return out
	}
	for _, col := range c.Columns {
		for _, s := range col.Synonyms {
			phrase := strings.Join(record.Tokens(s), " ")
			if phrase != "" {
				out[phrase] = col.Name
			}
		}
	}
	return out
}

// Describe returns a "NAME: description" line per documented column for
// prompts.
func (c *Catalog) Describe() string {
	if c == nil {
		return ""
	}
	var b strings.Builder
	for _, col := range c.Columns {
		b.WriteString(col.Name)
		if col.Description != "" {
			b.WriteString(": ")
			b.WriteString(col.Description)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
