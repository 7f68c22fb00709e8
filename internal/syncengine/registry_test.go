package syncengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	reg := DefaultRegistry()
	require.Len(t, reg.Tables(), 27)

	products, ok := reg.Table("products")
	require.True(t, ok)
	assert.Equal(t, "id", products.IDColumn)

	k, ok := products.KindOf("sale_price")
	require.True(t, ok)
	assert.Equal(t, Num, k)
	k, _ = products.KindOf("is_active")
	assert.Equal(t, Bool, k)
	k, _ = products.KindOf("created_at_ms")
	assert.Equal(t, Int, k)

	_, ok = products.KindOf("updated_at")
	assert.False(t, ok, "server columns are not client-writable")

	_, ok = reg.Table("app_config")
	assert.False(t, ok)

	names := reg.Names()
	assert.Equal(t, "app_settings", names[0])
	assert.Equal(t, "users", names[len(names)-1])
}

func TestNewRegistryRejectsInvalidDeclarations(t *testing.T) {
	cases := map[string][]Table{
		"bad table name":   {{Name: "drop table;", Columns: text("a")}},
		"uppercase name":   {{Name: "Clients", Columns: text("a")}},
		"duplicate table":  {{Name: "a", Columns: text("x")}, {Name: "a", Columns: text("y")}},
		"bad column":       {{Name: "a", Columns: text(`x" --`)}},
		"duplicate column": {{Name: "a", Columns: columns(text("x"), num("x"))}},
		"reserved column":  {{Name: "a", Columns: text("company_id")}},
		"id as column":     {{Name: "a", Columns: text("id")}},
		"reserved id":      {{Name: "a", IDColumn: "updated_at", Columns: text("x")}},
	}
	for name, tables := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewRegistry(tables)
			assert.Error(t, err)
		})
	}
}

func TestMustRegistryPanics(t *testing.T) {
	assert.Panics(t, func() { MustRegistry([]Table{{Name: "1bad"}}) })
}
