package testutil

import (
	"fmt"
	"strings"
)

// SampleMetadata is a trimmed Dataverse $metadata document with two custom
// tables bound to entity sets, one unbound custom table, one platform table
// and two malformed entity sets.
const SampleMetadata = `<?xml version="1.0" encoding="utf-8"?>
<edmx:Edmx Version="4.0" xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx">
  <edmx:DataServices>
    <Schema Namespace="Microsoft.Dynamics.CRM" Alias="mscrm" xmlns="http://docs.oasis-open.org/odata/ns/edm">
      <EntityType Name="crca6_ticket" BaseType="mscrm.crmbaseentity">
        <Key>
          <PropertyRef Name="crca6_ticketid" />
        </Key>
        <Property Name="crca6_ticketid" Type="Edm.Guid" />
        <Property Name="crca6_title" Type="Edm.String" />
        <Property Name="crca6_priority" Type="Edm.Int32" />
        <Property Name="_crca6_accountname_value" Type="Edm.Guid" />
        <NavigationProperty Name="crca6_accountName" Type="mscrm.crca6_account1" Partner="crca6_tickets" />
      </EntityType>
      <EntityType Name="crca6_account1" BaseType="mscrm.crmbaseentity">
        <Property Name="crca6_account1id" Type="Edm.Guid" />
        <Property Name="crca6_name" Type="Edm.String" />
        <NavigationProperty Name="crca6_tickets" Type="Collection(mscrm.crca6_ticket)" Partner="crca6_accountName" />
      </EntityType>
      <EntityType Name="crca6_draft">
        <Property Name="crca6_note" Type="Edm.String" />
      </EntityType>
      <EntityType Name="account" BaseType="mscrm.crmbaseentity">
        <Property Name="name" Type="Edm.String" />
      </EntityType>
      <EntityContainer Name="System">
        <EntitySet Name="crca6_tickets" EntityType="Microsoft.Dynamics.CRM.crca6_ticket" />
        <EntitySet Name="crca6_account1s" EntityType="Microsoft.Dynamics.CRM.crca6_account1" />
        <EntitySet Name="accounts" EntityType="Microsoft.Dynamics.CRM.account" />
        <EntitySet Name="crca6_broken" />
        <EntitySet EntityType="Microsoft.Dynamics.CRM.crca6_orphan" />
      </EntityContainer>
    </Schema>
  </edmx:DataServices>
</edmx:Edmx>`

// SamplePrefix is the custom-entity prefix used by SampleMetadata
const SamplePrefix = "crca6_"

// EntityOption is a functional option for configuring a test entity type
type EntityOption func(*testEntity)

type testEntity struct {
	name       string
	setName    string
	properties [][2]string
	navigation [][2]string
}

// WithEntitySet binds the entity type to an entity set
func WithEntitySet(name string) EntityOption {
	return func(e *testEntity) {
		e.setName = name
	}
}

// WithProperty adds a structural property
func WithProperty(name, typ string) EntityOption {
	return func(e *testEntity) {
		e.properties = append(e.properties, [2]string{name, typ})
	}
}

// WithNavigation adds a navigation property
func WithNavigation(name, typ string) EntityOption {
	return func(e *testEntity) {
		e.navigation = append(e.navigation, [2]string{name, typ})
	}
}

// MetadataBuilder assembles small $metadata documents for tests
type MetadataBuilder struct {
	namespace string
	entities  []*testEntity
}

// NewMetadataBuilder creates a builder using the Dataverse schema namespace
func NewMetadataBuilder() *MetadataBuilder {
	return &MetadataBuilder{namespace: "Microsoft.Dynamics.CRM"}
}

// Entity adds an entity type
func (b *MetadataBuilder) Entity(name string, opts ...EntityOption) *MetadataBuilder {
	entity := &testEntity{name: name}
	for _, opt := range opts {
		opt(entity)
	}

	b.entities = append(b.entities, entity)

	return b
}

// Build renders the document
func (b *MetadataBuilder) Build() string {
	var sb strings.Builder

	sb.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	sb.WriteString(`<edmx:Edmx Version="4.0" xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx"><edmx:DataServices>`)
	fmt.Fprintf(&sb, `<Schema Namespace="%s" xmlns="http://docs.oasis-open.org/odata/ns/edm">`, b.namespace)

	for _, e := range b.entities {
		fmt.Fprintf(&sb, `<EntityType Name="%s">`, e.name)
		for _, p := range e.properties {
			fmt.Fprintf(&sb, `<Property Name="%s" Type="%s" />`, p[0], p[1])
		}
		for _, n := range e.navigation {
			fmt.Fprintf(&sb, `<NavigationProperty Name="%s" Type="%s" />`, n[0], n[1])
		}
		sb.WriteString(`</EntityType>`)
	}

	sb.WriteString(`<EntityContainer Name="System">`)
	for _, e := range b.entities {
		if e.setName == "" {
			continue
		}
		fmt.Fprintf(&sb, `<EntitySet Name="%s" EntityType="%s.%s" />`, e.setName, b.namespace, e.name)
	}
	sb.WriteString(`</EntityContainer></Schema></edmx:DataServices></edmx:Edmx>`)

	return sb.String()
}
