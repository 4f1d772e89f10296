package catalog

import (
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/qmchamm/confbag/meta"
)

// Version is the catalog format version written into every catalog.
const Version = 1

// Driver names the source driver in written catalogs.
const Driver = "confbag"

// Catalog is an intake style catalog file.
type Catalog struct {
	Metadata map[string]any    `yaml:"metadata,omitempty"`
	Sources  map[string]Source `yaml:"sources"`
}

// Source is one named data source in a Catalog.
type Source struct {
	Description string         `yaml:"description"`
	Driver      string         `yaml:"driver"`
	Metadata    SourceMetadata `yaml:"metadata"`
}

// SourceMetadata carries the rows of a source.
type SourceMetadata struct {
	Version int     `yaml:"version"`
	Count   int     `yaml:"count"`
	Entries []Entry `yaml:"entries"`
}

// WriteYAML writes a catalog with a single source called name holding
// entries. The output depends only on its arguments.
func WriteYAML(w io.Writer, name, description string, entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	c := Catalog{
		Metadata: map[string]any{"version": Version},
		Sources: map[string]Source{
			name: {
				Description: description,
				Driver:      Driver,
				Metadata: SourceMetadata{
					Version: Version,
					Count:   len(entries),
					Entries: entries,
				},
			},
		},
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// ReadYAML parses a catalog written by WriteYAML.
func ReadYAML(r io.Reader) (*Catalog, error) {
	var c Catalog
	if err := yaml.NewDecoder(r).Decode(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// names of the non-attribute columns of an entry
const (
	colKey      = "key"
	colURI      = "uri"
	colSize     = "size"
	colDatasets = "datasets"
)

// MarshalYAML writes the entry as one flat mapping: the location columns
// first, then the attributes in field order, then any unknown attributes
// sorted by name.
func (e Entry) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	add := func(k string, v any) error {
		var val yaml.Node
		if err := val.Encode(v); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k}, &val)
		return nil
	}
	if err := add(colKey, e.Key); err != nil {
		return nil, err
	}
	if err := add(colURI, e.URI); err != nil {
		return nil, err
	}
	if err := add(colSize, e.Size); err != nil {
		return nil, err
	}

	datasets := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, d := range e.Datasets {
		datasets.Content = append(datasets.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: d})
	}
	node.Content = append(node.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: colDatasets}, datasets)

	seen := make(map[string]bool)
	for _, f := range meta.Fields {
		if v, ok := e.Attributes[f.Name]; ok {
			seen[f.Name] = true
			if err := add(f.Name, v); err != nil {
				return nil, err
			}
		}
	}
	var extra []string
	for k := range e.Attributes {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		if err := add(k, e.Attributes[k]); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// UnmarshalYAML reads an entry written by MarshalYAML.
func (e *Entry) UnmarshalYAML(value *yaml.Node) error {
	var row map[string]any
	if err := value.Decode(&row); err != nil {
		return err
	}
	*e = Entry{Attributes: make(map[string]any)}
	for k, v := range row {
		switch k {
		case colKey:
			e.Key = fmt.Sprint(v)
		case colURI:
			e.URI = fmt.Sprint(v)
		case colSize:
			n, ok := v.(int)
			if !ok {
				return fmt.Errorf("catalog: size %v is not an integer", v)
			}
			e.Size = int64(n)
		case colDatasets:
			list, _ := v.([]any)
			for _, d := range list {
				e.Datasets = append(e.Datasets, fmt.Sprint(d))
			}
		default:
			// integral floats are written without a decimal point
			if f, ok := meta.Lookup(k); ok && f.Kind == meta.KindFloat {
				if n, isInt := v.(int); isInt {
					v = float64(n)
				}
			}
			e.Attributes[k] = v
		}
	}
	return nil
}
