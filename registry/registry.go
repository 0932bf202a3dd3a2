// Package registry is the static catalog of open-data sources civicload knows about.
//
// The catalog is embedded in the binary and decoded once. Descriptors are
// plain values; every accessor hands out copies so no caller can change what
// another sees mid-run.
package registry

import (
	_ "embed"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/teranos/civicload/errors"
)

//go:embed datasets.toml
var builtinCatalog string

// Registry is an ordered, read-only set of dataset descriptors
type Registry struct {
	order       []string
	descriptors map[string]Descriptor
}

// New builds a Registry from explicit descriptors, keeping their order.
func New(descriptors ...Descriptor) (*Registry, error) {
	r := &Registry{descriptors: make(map[string]Descriptor, len(descriptors))}
	for _, d := range descriptors {
		if err := d.check(); err != nil {
			return nil, err
		}
		if _, dup := r.descriptors[d.Name]; dup {
			return nil, errors.Wrapf(errors.ErrConflict, "dataset %s declared twice", d.Name)
		}
		r.order = append(r.order, d.Name)
		r.descriptors[d.Name] = d.clone()
	}
	return r, nil
}

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return Parse(builtinCatalog)
})

// Default returns the Registry built from the embedded catalog.
func Default() (*Registry, error) {
	return defaultRegistry()
}

type catalogFile struct {
	Dataset []struct {
		Name           string            `toml:"name"`
		Title          string            `toml:"title"`
		Method         string            `toml:"method"`
		Source         string            `toml:"source"`
		Params         map[string]string `toml:"params"`
		Format         string            `toml:"format"`
		StartYear      int               `toml:"start_year"`
		EndYear        int               `toml:"end_year"`
		Subpath        string            `toml:"subpath"`
		Sheet          string            `toml:"sheet"`
		MinYear        int               `toml:"min_year"`
		RequestDelayMS int               `toml:"request_delay_ms"`
		TimeoutSeconds int               `toml:"timeout_seconds"`
		TargetTable    string            `toml:"target_table"`
		NaturalKey     []string          `toml:"natural_key"`
		Columns        []ColumnMapping   `toml:"columns"`
		Renames        []HeaderRename    `toml:"renames"`
	} `toml:"dataset"`
}

// Parse builds a Registry from a TOML catalog document
func Parse(doc string) (*Registry, error) {
	var file catalogFile
	md, err := toml.Decode(doc, &file)
	if err != nil {
		return nil, errors.Wrap(err, "decode dataset catalog")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, errors.NewInvalidRequestError("unknown keys in dataset catalog: %v", undecoded)
	}

	descriptors := make([]Descriptor, 0, len(file.Dataset))
	for _, raw := range file.Dataset {
		descriptors = append(descriptors, Descriptor{
			Name:         raw.Name,
			Title:        raw.Title,
			Method:       Method(strings.ToLower(raw.Method)),
			Source:       raw.Source,
			Params:       raw.Params,
			Format:       Format(strings.ToLower(raw.Format)),
			StartYear:    raw.StartYear,
			EndYear:      raw.EndYear,
			Subpath:      raw.Subpath,
			Sheet:        raw.Sheet,
			MinYear:      raw.MinYear,
			RequestDelay: time.Duration(raw.RequestDelayMS) * time.Millisecond,
			Timeout:      time.Duration(raw.TimeoutSeconds) * time.Second,
			TargetTable:  raw.TargetTable,
			NaturalKey:   raw.NaturalKey,
			Columns:      raw.Columns,
			Renames:      raw.Renames,
		})
	}
	return New(descriptors...)
}

// Descriptor returns the descriptor for name, or a NotFound error
func (r *Registry) Descriptor(name string) (Descriptor, error) {
	d, ok := r.descriptors[name]
	if !ok {
		return Descriptor{}, errors.WithHint(
			errors.NewNotFoundError("unknown dataset %q", name),
			"known datasets: "+strings.Join(r.order, ", "),
		)
	}
	return d.clone(), nil
}

// Names lists dataset names in catalog order
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// All returns every descriptor in catalog order
func (r *Registry) All() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descriptors[name].clone())
	}
	return out
}

// Resolve turns a CLI selection into descriptors. all wins over names;
// an empty selection without all is rejected. Duplicates collapse.
func (r *Registry) Resolve(names []string, all bool) ([]Descriptor, error) {
	if all {
		return r.All(), nil
	}
	if len(names) == 0 {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("no datasets selected"),
			"pass --all or one or more --dataset flags",
		)
	}

	seen := make(map[string]bool, len(names))
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		d, err := r.Descriptor(name)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}
