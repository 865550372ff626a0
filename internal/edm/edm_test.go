package edm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyleking/dataverse-agent/internal/errors"
	"github.com/kyleking/dataverse-agent/internal/testutil"
)

func TestParse(t *testing.T) {
	doc, err := Parse([]byte(testutil.SampleMetadata))
	require.NoError(t, err)
	require.Len(t, doc.DataServices.Schemas, 1)

	schema := doc.DataServices.Schemas[0]
	assert.Equal(t, "Microsoft.Dynamics.CRM", schema.Namespace)
	assert.Equal(t, "mscrm", schema.Alias)

	t.Run("entity types", func(t *testing.T) {
		types := doc.EntityTypes()
		require.Len(t, types, 4)

		names := make([]string, 0, len(types))
		for _, et := range types {
			names = append(names, et.Name)
		}
		assert.Equal(t, []string{"crca6_ticket", "crca6_account1", "crca6_draft", "account"}, names)

		ticket := types[0]
		require.Len(t, ticket.Properties, 4)
		assert.Equal(t, Property{Name: "crca6_ticketid", Type: "Edm.Guid"}, ticket.Properties[0])
		assert.Equal(t, "_crca6_accountname_value", ticket.Properties[3].Name)

		require.Len(t, ticket.NavigationProperties, 1)
		assert.Equal(t, "crca6_accountName", ticket.NavigationProperties[0].Name)
		assert.Equal(t, "mscrm.crca6_account1", ticket.NavigationProperties[0].Type)
		assert.Equal(t, "crca6_tickets", ticket.NavigationProperties[0].Partner)
	})

	t.Run("entity sets skip missing attributes", func(t *testing.T) {
		sets := doc.EntitySets()
		require.Len(t, sets, 3)

		assert.Equal(t, "crca6_tickets", sets[0].Name)
		assert.Equal(t, "crca6_ticket", sets[0].LogicalName())
		assert.Equal(t, "crca6_account1s", sets[1].Name)
		assert.Equal(t, "accounts", sets[2].Name)
		assert.Equal(t, "account", sets[2].LogicalName())
	})
}

func TestParseReader(t *testing.T) {
	doc, err := ParseReader(strings.NewReader(testutil.SampleMetadata))
	require.NoError(t, err)
	assert.Len(t, doc.EntitySets(), 3)
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "not xml", data: "this is not xml"},
		{name: "unclosed element", data: `<edmx:Edmx xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx"><edmx:DataServices>`},
		{name: "mismatched tags", data: `<a><b></a></b>`},
		{name: "trailing element", data: `<a></a><b></b>`},
		{name: "trailing text", data: `<a></a>garbage`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Parse([]byte(tt.data))
			require.Error(t, err)
			assert.Nil(t, doc)
			assert.True(t, errors.IsType(err, errors.ErrTypeParse), "got %v", err)
		})
	}
}

func TestParseIgnoresOtherNamespaces(t *testing.T) {
	data := `<edmx:Edmx xmlns:edmx="http://docs.oasis-open.org/odata/ns/edmx"><edmx:DataServices>` +
		`<Schema xmlns="urn:something-else"><EntityType Name="crca6_ghost"/></Schema>` +
		`</edmx:DataServices></edmx:Edmx>`

	doc, err := Parse([]byte(data))
	require.NoError(t, err)
	assert.Empty(t, doc.EntityTypes())
	assert.Empty(t, doc.EntitySets())
}

func TestParseBuilderDocument(t *testing.T) {
	data := testutil.NewMetadataBuilder().
		Entity("crca6_a", testutil.WithEntitySet("crca6_as"), testutil.WithProperty("crca6_x", "Edm.String")).
		Entity("crca6_b", testutil.WithNavigation("crca6_a", "Collection(Microsoft.Dynamics.CRM.crca6_a)")).
		Build()

	doc, err := Parse([]byte(data))
	require.NoError(t, err)

	require.Len(t, doc.EntityTypes(), 2)
	require.Len(t, doc.EntitySets(), 1)
	assert.Equal(t, "crca6_a", doc.EntitySets()[0].LogicalName())
}

func TestLocalName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Microsoft.Dynamics.CRM.crca6_ticket", "crca6_ticket"},
		{"mscrm.crca6_account1", "crca6_account1"},
		{"Collection(mscrm.crca6_ticket)", "crca6_ticket"},
		{"crca6_plain", "crca6_plain"},
		{"  Edm.String  ", "String"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, LocalName(tt.in))
		})
	}
}
