// Package reference loads the static entity and category data used to build feature vectors.
package reference

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pkmeta/metaspot/internal/contract"
)

// Top-level keys of the reference documents.
const (
	CategoryKey = "TYPE_POKEMON"
	EntityKey   = "POKEMON"
	TriggerKey  = "TYPE_TRIGGER"
)

// Data is the immutable reference data for one run.
type Data struct {
	entityCategories map[string][]string
	categories       []string
	entities         []string
	categorySet      map[string]struct{}
	entitySet        map[string]struct{}
	triggers         map[string][]int
}

// Load reads the category document and the entity document. The entity document is optional:
// when entityPath is empty the entity set is every entity named by some category.
func Load(categoryPath, entityPath string) (*Data, error) {
	mapping, err := readCategoryDocument(categoryPath)
	if err != nil {
		return nil, err
	}

	var entities []string
	if entityPath != "" {
		entities, err = readEntityDocument(entityPath)
		if err != nil {
			return nil, err
		}
	}
	return FromMapping(mapping, entities)
}

// FromMapping builds reference data from an in-memory category→entity-list mapping.
// Category names are lower-cased. Entities listed in no category get an empty category list.
func FromMapping(mapping map[string][]string, entities []string) (*Data, error) {
	d := &Data{
		entityCategories: make(map[string][]string),
		categorySet:      make(map[string]struct{}),
		entitySet:        make(map[string]struct{}),
		triggers:         make(map[string][]int),
	}

	for _, name := range entities {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, contract.ConfigurationError("entity list contains an empty name")
		}
		d.entitySet[name] = struct{}{}
	}

	// Sorted keys so that EntityCategories order is stable across runs.
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, raw := range keys {
		category := strings.ToLower(strings.TrimSpace(raw))
		if category == "" {
			return nil, contract.ConfigurationError("category document contains an empty category name")
		}
		if _, dup := d.categorySet[category]; dup {
			return nil, contract.ConfigurationError("category %q is defined twice (names are case-insensitive)", category)
		}
		d.categorySet[category] = struct{}{}
		d.categories = append(d.categories, category)

		for _, entity := range mapping[raw] {
			entity = strings.TrimSpace(entity)
			if entity == "" {
				return nil, contract.ConfigurationError("category %q lists an empty entity name", category)
			}
			if !slices.Contains(d.entityCategories[entity], category) {
				d.entityCategories[entity] = append(d.entityCategories[entity], category)
			}
			d.entitySet[entity] = struct{}{}
		}
	}

	for entity := range d.entitySet {
		if _, clash := d.categorySet[entity]; clash {
			return nil, contract.ConfigurationError("%q is used both as an entity and as a category", entity)
		}
		d.entities = append(d.entities, entity)
	}
	sort.Strings(d.entities)
	return d, nil
}

// LoadTriggers reads the optional trigger document (category → ascending thresholds).
func (d *Data) LoadTriggers(path string) error {
	doc, err := readDocument(path)
	if err != nil {
		return err
	}
	node, ok := doc[TriggerKey]
	if !ok {
		return contract.ConfigurationError("%s: missing top-level key %q", path, TriggerKey)
	}
	var raw map[string][]int
	if err := node.Decode(&raw); err != nil {
		return contract.WrapConfiguration(err, "%s: %s must map categories to threshold lists", path, TriggerKey)
	}
	for k, thresholds := range raw {
		category := strings.ToLower(strings.TrimSpace(k))
		if category == "" {
			return contract.ConfigurationError("%s: empty category name in %s", path, TriggerKey)
		}
		sorted := slices.Clone(thresholds)
		slices.Sort(sorted)
		d.triggers[category] = sorted
	}
	return nil
}

// EntityCategories returns the categories an entity belongs to. Unknown entities have none.
func (d *Data) EntityCategories(entity string) []string {
	return d.entityCategories[entity]
}

// Categories returns every category name, sorted.
func (d *Data) Categories() []string { return slices.Clone(d.categories) }

// Entities returns every known entity name, sorted.
func (d *Data) Entities() []string { return slices.Clone(d.entities) }

// IsCategory reports whether name is a known category.
func (d *Data) IsCategory(name string) bool {
	_, ok := d.categorySet[name]
	return ok
}

// IsEntity reports whether name is a known entity.
func (d *Data) IsEntity(name string) bool {
	_, ok := d.entitySet[name]
	return ok
}

// Triggers returns the ascending thresholds of a category, or nil.
func (d *Data) Triggers(category string) []int {
	return d.triggers[category]
}

// SynergyLevel returns the highest trigger threshold reached by count, or 0.
func (d *Data) SynergyLevel(category string, count float64) int {
	level := 0
	for _, t := range d.triggers[category] {
		if count >= float64(t) {
			level = t
		}
	}
	return level
}

func readCategoryDocument(path string) (map[string][]string, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	node, ok := doc[CategoryKey]
	if !ok {
		return nil, contract.ConfigurationError("%s: missing top-level key %q", path, CategoryKey)
	}
	var mapping map[string][]string
	if err := node.Decode(&mapping); err != nil {
		return nil, contract.WrapConfiguration(err, "%s: %s must map categories to entity lists", path, CategoryKey)
	}
	return mapping, nil
}

// readEntityDocument accepts the entity list either as a sequence or as a map whose values are names.
func readEntityDocument(path string) ([]string, error) {
	doc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	node, ok := doc[EntityKey]
	if !ok {
		return nil, contract.ConfigurationError("%s: missing top-level key %q", path, EntityKey)
	}

	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return nil, contract.WrapConfiguration(err, "%s: %s must be a list of names", path, EntityKey)
		}
		return list, nil
	case yaml.MappingNode:
		var byKey map[string]string
		if err := node.Decode(&byKey); err != nil {
			return nil, contract.WrapConfiguration(err, "%s: %s must map ids to names", path, EntityKey)
		}
		names := make([]string, 0, len(byKey))
		for _, name := range byKey {
			names = append(names, name)
		}
		sort.Strings(names)
		return names, nil
	default:
		return nil, contract.ConfigurationError("%s: %s must be a list or a map", path, EntityKey)
	}
}

func readDocument(path string) (map[string]yaml.Node, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, contract.WrapConfiguration(err, "cannot read reference file")
	}
	var doc map[string]yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(raw)).Decode(&doc); err != nil {
		return nil, contract.WrapConfiguration(err, "cannot parse %s", path)
	}
	if doc == nil {
		return nil, contract.ConfigurationError("%s: empty document", path)
	}
	return doc, nil
}

// String summarizes the loaded data for progress logs.
func (d *Data) String() string {
	return fmt.Sprintf("%d categories, %d entities", len(d.categories), len(d.entities))
}
