// Package catalog provides the immutable settings catalog (vehicles and
// collectible items) shared by every lobby session.
package catalog

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ItemType classifies collectible items.
type ItemType string

const (
	// ItemTypeHarvest is a harvested resource (plants, wood).
	ItemTypeHarvest ItemType = "harvest"
	// ItemTypeOre is a mined resource.
	ItemTypeOre ItemType = "ore"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	return t == ItemTypeHarvest || t == ItemTypeOre
}

// Vehicle is a vehicle that can be assigned to a group or a player.
type Vehicle struct {
	Name     string  `yaml:"name" json:"name"`
	Kind     string  `yaml:"kind" json:"kind"`
	Seats    int     `yaml:"seats" json:"seats"`
	Capacity float64 `yaml:"capacity" json:"capacity"`
}

// Item is a collectible item definition. Attributes are per-unit values
// (weight, value, ...) consumed by the aggregation reducer.
type Item struct {
	Type       ItemType           `yaml:"type" json:"type"`
	Name       string             `yaml:"name" json:"name"`
	Attributes map[string]float64 `yaml:"attributes" json:"attributes,omitempty"`
}

type itemKey struct {
	typ  ItemType
	name string
}

// Settings is the catalog of vehicles and items. It is loaded once and never
// mutated afterwards, so it is safe to share across sessions and goroutines.
type Settings struct {
	Vehicles []*Vehicle `yaml:"vehicles" json:"vehicles"`
	Items    []*Item    `yaml:"items" json:"items"`

	vehicles map[string]*Vehicle
	items    map[itemKey]*Item
}

// Load reads and indexes the settings catalog at path.
//
// Precondition: path must name a readable YAML file.
// Postcondition: Returns a validated, indexed Settings or a non-nil error.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: reading %q: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: %q: %w", path, err)
	}
	return s, nil
}

// Parse decodes and indexes a YAML settings document.
//
// Postcondition: Returns a validated, indexed Settings or a non-nil error.
func Parse(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return &s, nil
}

// New builds an indexed Settings from in-memory definitions.
//
// Postcondition: Returns a validated Settings or a non-nil error on duplicates.
func New(vehicles []*Vehicle, items []*Item) (*Settings, error) {
	s := &Settings{Vehicles: vehicles, Items: items}
	if err := s.index(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) index() error {
	var errs []error
	s.vehicles = make(map[string]*Vehicle, len(s.Vehicles))
	for i, v := range s.Vehicles {
		if v == nil || v.Name == "" {
			errs = append(errs, fmt.Errorf("vehicles[%d]: name must not be empty", i))
			continue
		}
		if _, dup := s.vehicles[v.Name]; dup {
			errs = append(errs, fmt.Errorf("vehicles[%d]: duplicate vehicle %q", i, v.Name))
			continue
		}
		s.vehicles[v.Name] = v
	}

	s.items = make(map[itemKey]*Item, len(s.Items))
	for i, it := range s.Items {
		if it == nil || it.Name == "" {
			errs = append(errs, fmt.Errorf("items[%d]: name must not be empty", i))
			continue
		}
		if !it.Type.Valid() {
			errs = append(errs, fmt.Errorf("items[%d]: unknown item type %q", i, it.Type))
			continue
		}
		k := itemKey{typ: it.Type, name: it.Name}
		if _, dup := s.items[k]; dup {
			errs = append(errs, fmt.Errorf("items[%d]: duplicate %s item %q", i, it.Type, it.Name))
			continue
		}
		s.items[k] = it
	}
	return errors.Join(errs...)
}

// Vehicle returns the vehicle with the given name.
//
// Postcondition: ok is true iff a vehicle named name exists.
func (s *Settings) Vehicle(name string) (*Vehicle, bool) {
	v, ok := s.vehicles[name]
	return v, ok
}

// Item returns the item definition identified by (typ, name).
//
// Postcondition: ok is true iff the item exists.
func (s *Settings) Item(typ ItemType, name string) (*Item, bool) {
	it, ok := s.items[itemKey{typ: typ, name: name}]
	return it, ok
}
