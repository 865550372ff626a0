// Package edm parses OData CSDL ($metadata) documents into a minimal entity model.
package edm

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/kyleking/dataverse-agent/internal/errors"
)

// Namespace is the CSDL namespace that EntityType and EntitySet elements must live in
const Namespace = "http://docs.oasis-open.org/odata/ns/edm"

// Document is the parsed metadata document
type Document struct {
	DataServices DataServices `xml:"DataServices"`
}

type DataServices struct {
	Schemas []Schema `xml:"http://docs.oasis-open.org/odata/ns/edm Schema"`
}

type Schema struct {
	Namespace       string            `xml:"Namespace,attr"`
	Alias           string            `xml:"Alias,attr"`
	EntityTypes     []EntityType      `xml:"http://docs.oasis-open.org/odata/ns/edm EntityType"`
	EntityContainer []EntityContainer `xml:"http://docs.oasis-open.org/odata/ns/edm EntityContainer"`
}

type EntityType struct {
	Name                 string               `xml:"Name,attr"`
	BaseType             string               `xml:"BaseType,attr"`
	Properties           []Property           `xml:"http://docs.oasis-open.org/odata/ns/edm Property"`
	NavigationProperties []NavigationProperty `xml:"http://docs.oasis-open.org/odata/ns/edm NavigationProperty"`
}

type Property struct {
	Name string `xml:"Name,attr"`
	Type string `xml:"Type,attr"`
}

type NavigationProperty struct {
	Name    string `xml:"Name,attr"`
	Type    string `xml:"Type,attr"`
	Partner string `xml:"Partner,attr"`
}

type EntityContainer struct {
	Name       string      `xml:"Name,attr"`
	EntitySets []EntitySet `xml:"http://docs.oasis-open.org/odata/ns/edm EntitySet"`
}

type EntitySet struct {
	Name       string `xml:"Name,attr"`
	EntityType string `xml:"EntityType,attr"`
}

// LogicalName returns the final segment of the bound entity type's qualified name
func (s EntitySet) LogicalName() string {
	return LocalName(s.EntityType)
}

// LocalName strips the namespace qualifier from a qualified type name.
// Collection(...) wrappers on navigation types are removed first.
func LocalName(qualified string) string {
	name := strings.TrimSpace(qualified)
	if strings.HasPrefix(name, "Collection(") && strings.HasSuffix(name, ")") {
		name = name[len("Collection(") : len(name)-1]
	}

	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}

	return name
}

// Parse parses a metadata document
func Parse(data []byte) (*Document, error) {
	return ParseReader(bytes.NewReader(data))
}

// ParseReader parses a metadata document from r
func ParseReader(r io.Reader) (*Document, error) {
	var doc Document

	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrTypeParse, "failed to parse metadata document")
	}

	// Decode stops after the root element; anything but whitespace or
	// comments after it means the document is not well-formed.
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrTypeParse, "failed to parse metadata document")
		}

		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, errors.New(errors.ErrTypeParse, "unexpected content after metadata root element")
			}
		case xml.StartElement:
			return nil, errors.New(errors.ErrTypeParse, "multiple root elements in metadata document")
		}
	}

	return &doc, nil
}

// EntitySets returns every entity set that names both itself and its entity type.
// Sets missing either attribute are skipped.
func (d *Document) EntitySets() []EntitySet {
	var sets []EntitySet

	for _, schema := range d.DataServices.Schemas {
		for _, container := range schema.EntityContainer {
			for _, set := range container.EntitySets {
				if strings.TrimSpace(set.Name) == "" || strings.TrimSpace(set.EntityType) == "" {
					continue
				}
				sets = append(sets, set)
			}
		}
	}

	return sets
}

// EntityTypes returns every named entity type in document order
func (d *Document) EntityTypes() []EntityType {
	var types []EntityType

	for _, schema := range d.DataServices.Schemas {
		for _, entity := range schema.EntityTypes {
			if strings.TrimSpace(entity.Name) == "" {
				continue
			}
			types = append(types, entity)
		}
	}

	return types
}
