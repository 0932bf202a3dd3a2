package contract

import (
	_ "embed"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/Masterminds/semver/v3"

	"github.com/teranos/civicload/errors"
)

//go:embed contracts.toml
var builtinCatalog string

// Store is a read-only set of contracts keyed by dataset name
type Store struct {
	contracts map[string]Contract
}

// New builds a Store from explicit contracts. Duplicate datasets are rejected.
func New(contracts ...Contract) (*Store, error) {
	s := &Store{contracts: make(map[string]Contract, len(contracts))}
	for _, c := range contracts {
		if err := c.check(); err != nil {
			return nil, err
		}
		if _, dup := s.contracts[c.Dataset]; dup {
			return nil, errors.Wrapf(errors.ErrConflict, "contract for %s declared twice", c.Dataset)
		}
		s.contracts[c.Dataset] = c.clone()
	}
	return s, nil
}

var defaultStore = sync.OnceValues(func() (*Store, error) {
	return Parse(builtinCatalog)
})

// Default returns the Store built from the embedded catalog.
// It is constructed on first use and shared for the process lifetime.
func Default() (*Store, error) {
	return defaultStore()
}

type catalogFile struct {
	Contract []struct {
		Dataset     string `toml:"dataset"`
		Version     string `toml:"version"`
		MinRowCount int    `toml:"min_row_count"`
		Column      []struct {
			Name     string `toml:"name"`
			Type     string `toml:"type"`
			Nullable bool   `toml:"nullable"`
		} `toml:"column"`
	} `toml:"contract"`
}

// Parse builds a Store from a TOML catalog document
func Parse(doc string) (*Store, error) {
	var file catalogFile
	if _, err := toml.Decode(doc, &file); err != nil {
		return nil, errors.Wrap(err, "decode contract catalog")
	}

	contracts := make([]Contract, 0, len(file.Contract))
	for _, raw := range file.Contract {
		version, err := semver.NewVersion(raw.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "contract %s: invalid version %q", raw.Dataset, raw.Version)
		}
		c := Contract{Dataset: raw.Dataset, Version: version, MinRowCount: raw.MinRowCount}
		for _, col := range raw.Column {
			typ, err := ParseColumnType(col.Type)
			if err != nil {
				return nil, errors.Wrapf(err, "contract %s column %q", raw.Dataset, col.Name)
			}
			c.Columns = append(c.Columns, ColumnSpec{Name: col.Name, Type: typ, Nullable: col.Nullable})
		}
		contracts = append(contracts, c)
	}
	return New(contracts...)
}

// Contract returns the contract for a dataset, or a NotFound error
func (s *Store) Contract(dataset string) (Contract, error) {
	c, ok := s.contracts[dataset]
	if !ok {
		return Contract{}, errors.NewNotFoundError("no schema contract for dataset %q", dataset)
	}
	return c.clone(), nil
}

// Datasets lists the datasets that have a contract, sorted
func (s *Store) Datasets() []string {
	names := make([]string, 0, len(s.contracts))
	for name := range s.contracts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
