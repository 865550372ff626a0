// Package schema derives the entity-set index, the oracle-facing schema summary
// and the table allow-list from a parsed metadata document.
package schema

import (
	"sort"
	"strings"

	"github.com/kyleking/dataverse-agent/internal/edm"
)

// Entry is one index key and the collection name it resolves to
type Entry struct {
	Key        string
	Collection string
}

// Index maps logical entity names and collection names to the canonical
// collection name used in query URLs. It is immutable once built.
type Index struct {
	mapping map[string]string
}

// NewIndex builds an index over every entity set whose bound entity type's
// logical name starts with prefix. An empty prefix keeps every set.
// When two sets claim the same key the first one in document order wins.
func NewIndex(doc *edm.Document, prefix string) *Index {
	idx := &Index{mapping: make(map[string]string)}

	if doc == nil {
		return idx
	}

	for _, set := range doc.EntitySets() {
		logical := set.LogicalName()
		if !strings.HasPrefix(logical, prefix) {
			continue
		}

		if _, exists := idx.mapping[logical]; !exists {
			idx.mapping[logical] = set.Name
		}

		if _, exists := idx.mapping[set.Name]; !exists {
			idx.mapping[set.Name] = set.Name
		}
	}

	return idx
}

// Resolve returns the collection name for a logical or collection name
func (idx *Index) Resolve(name string) (string, bool) {
	collection, ok := idx.mapping[name]
	return collection, ok
}

// Len returns the number of keys
func (idx *Index) Len() int {
	return len(idx.mapping)
}

// Entries returns every key and its collection, sorted by key
func (idx *Index) Entries() []Entry {
	entries := make([]Entry, 0, len(idx.mapping))
	for key, collection := range idx.mapping {
		entries = append(entries, Entry{Key: key, Collection: collection})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	return entries
}
