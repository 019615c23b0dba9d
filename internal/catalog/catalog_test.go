package catalog

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbedded(t *testing.T) {
	res := LoadEmbedded()
	require.NoError(t, res.Reason)
	assert.Equal(t, Loaded, res.Outcome)
	assert.Equal(t, EmbeddedSource, res.Source)

	c := res.Catalog
	assert.Equal(t, 40, c.Len())

	names := c.Names()
	assert.Equal(t, "search_amendments", names[0], "document order is preserved")
	assert.Equal(t, "get_treaty_actions", names[len(names)-1])

	seen := map[string]bool{}
	for _, n := range names {
		assert.False(t, seen[n], "duplicate %s", n)
		seen[n] = true
	}
}

func TestLoadEmptyPathUsesEmbedded(t *testing.T) {
	res := Load("")
	assert.Equal(t, Loaded, res.Outcome)
	assert.Equal(t, EmbeddedSource, res.Source)
}

func TestLoadMissingFileFallsBack(t *testing.T) {
	res := Load(filepath.Join(t.TempDir(), "tool-definitions.json"))

	assert.Equal(t, FellBack, res.Outcome)
	require.Error(t, res.Reason)
	assert.True(t, errors.Is(res.Reason, os.ErrNotExist))
	assertFallback(t, res.Catalog)
}

func TestLoadMalformedFileFallsBack(t *testing.T) {
	tests := map[string]string{
		"not json":       `{"tools":`,
		"not an array":   `{"name":"x"}`,
		"empty array":    `[]`,
		"missing name":   `[{"description":"d","inputSchema":{"type":"object"}}]`,
		"missing schema": `[{"name":"a"}]`,
		"duplicate":      `[{"name":"a","inputSchema":{"type":"object"}},{"name":"a","inputSchema":{"type":"object"}}]`,
		"bad schema":     `[{"name":"a","inputSchema":{"type":"object","properties":{"x":{"type":7}}}}]`,
		"bad required":   `[{"name":"a","inputSchema":{"type":"object","properties":{},"required":["x"]}}]`,
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tools.json")
			require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

			res := Load(path)
			assert.Equal(t, FellBack, res.Outcome)
			assert.Error(t, res.Reason)
			assert.Equal(t, path, res.Source)
			assertFallback(t, res.Catalog)
		})
	}
}

func TestLoadExternalFilePreservesOrder(t *testing.T) {
	doc := `[
		{"name":"zeta","description":"last letter","inputSchema":{"type":"object","properties":{}}},
		{"name":"alpha","description":"first letter","inputSchema":{"type":"object","properties":{"q":{"type":"string"}},"required":["q"]}}
	]`
	path := filepath.Join(t.TempDir(), "tools.json")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	res := Load(path)
	require.Equal(t, Loaded, res.Outcome, "reason: %v", res.Reason)
	assert.Equal(t, []string{"zeta", "alpha"}, res.Catalog.Names())
}

func TestFallback(t *testing.T) {
	assertFallback(t, Fallback())
}

func assertFallback(t *testing.T, c *Catalog) {
	t.Helper()
	require.NotNil(t, c)
	require.Equal(t, 1, c.Len())

	tool, ok := c.Lookup("search_bills")
	require.True(t, ok)
	assert.Equal(t, "search_bills", tool.Name)

	schema, ok := c.Schema("search_bills")
	require.True(t, ok)
	assert.Equal(t, []string{"query"}, schema.Required)
	require.Len(t, schema.Properties, 1)
	assert.Equal(t, "string", schema.Properties["query"].Type)
}

func TestLookupIsExactAndCaseSensitive(t *testing.T) {
	c := LoadEmbedded().Catalog

	_, ok := c.Lookup("search_bills")
	assert.True(t, ok)

	for _, name := range []string{"Search_Bills", "search_bills ", " search_bills", "searchbills", ""} {
		_, ok := c.Lookup(name)
		assert.False(t, ok, "%q must not match", name)
		assert.False(t, c.Has(name))
	}
}

func TestListReturnsCopy(t *testing.T) {
	c := LoadEmbedded().Catalog
	list := c.List()
	list[0].Name = "mutated"

	assert.Equal(t, "search_amendments", c.List()[0].Name)
}

func TestSchemaDecodesConstraints(t *testing.T) {
	c := LoadEmbedded().Catalog

	schema, ok := c.Schema("search_amendments")
	require.True(t, ok)

	limit := schema.Properties["limit"]
	assert.Equal(t, "number", limit.Type)
	require.NotNil(t, limit.Minimum)
	require.NotNil(t, limit.Maximum)
	assert.Equal(t, 1.0, *limit.Minimum)
	assert.Equal(t, 250.0, *limit.Maximum)
	assert.Equal(t, float64(20), limit.Default)

	assert.Equal(t, []any{"house", "senate"}, schema.Properties["chamber"].Enum)
	assert.Equal(t, "date", schema.Properties["fromDateTime"].Format)

	details, ok := c.Schema("get_bill_details")
	require.True(t, ok)
	assert.Equal(t, []string{"congress", "billType", "billNumber"}, details.Required)
}

func TestValidate(t *testing.T) {
	c := LoadEmbedded().Catalog

	decode := func(s string) any {
		var v any
		require.NoError(t, json.Unmarshal([]byte(s), &v))
		return v
	}

	assert.NoError(t, c.Validate("search_bills", decode(`{"query":"healthcare"}`)))
	assert.NoError(t, c.Validate("search_amendments", nil))
	assert.NoError(t, c.Validate("get_bill_details", decode(`{"congress":"119","billType":"hr","billNumber":"1"}`)))

	err := c.Validate("get_bill_details", decode(`{"congress":"119"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "get_bill_details")

	assert.Error(t, c.Validate("search_amendments", decode(`{"limit":500}`)))
	assert.Error(t, c.Validate("search_amendments", decode(`{"chamber":"joint"}`)))

	assert.ErrorIs(t, c.Validate("nope", nil), ErrNotFound)
}

func TestSuggest(t *testing.T) {
	c := LoadEmbedded().Catalog

	got := c.Suggest("bill_text", 3)
	assert.Contains(t, got, "get_bill_text")
	assert.LessOrEqual(t, len(got), 3)

	got = c.Suggest("serch_bills", 1)
	assert.Equal(t, []string{"search_bills"}, got)

	assert.Empty(t, c.Suggest("", 3))
	assert.Empty(t, c.Suggest("search_bills", 0))
	assert.Empty(t, c.Suggest("zzzzzzzzzzzzzzzzzzzzzzzzzz", 3))
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "loaded", Loaded.String())
	assert.Equal(t, "fell_back", FellBack.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
