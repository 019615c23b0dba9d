// Package catalog holds the immutable, ordered set of tool descriptors the
// proxy advertises to the host.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNotFound is returned when a tool name is not in the catalog.
var ErrNotFound = errors.New("tool not found")

// ToolDescriptor describes one tool. InputSchema is kept as the raw document so
// that property order survives re-encoding for the host.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// InputSchema is the decoded view of a descriptor's input schema.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Property is a single argument constraint.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Default     any      `json:"default,omitempty"`
	Format      string   `json:"format,omitempty"`
}

// Catalog is safe for concurrent use; nothing mutates it after construction.
type Catalog struct {
	tools    []ToolDescriptor
	schemas  []InputSchema
	compiled []*jsonschema.Schema
	index    map[string]int
}

// List returns the descriptors in catalog order. The slice is a copy.
func (c *Catalog) List() []ToolDescriptor {
	out := make([]ToolDescriptor, len(c.tools))
	copy(out, c.tools)
	return out
}

// Len returns the number of tools.
func (c *Catalog) Len() int { return len(c.tools) }

// Names returns tool names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.tools))
	for i, t := range c.tools {
		names[i] = t.Name
	}
	return names
}

// Lookup finds a tool by exact, case-sensitive name.
func (c *Catalog) Lookup(name string) (ToolDescriptor, bool) {
	i, ok := c.index[name]
	if !ok {
		return ToolDescriptor{}, false
	}
	return c.tools[i], true
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Schema returns the decoded input schema for name.
func (c *Catalog) Schema(name string) (InputSchema, bool) {
	i, ok := c.index[name]
	if !ok {
		return InputSchema{}, false
	}
	return c.schemas[i], true
}

// Validate checks args (as produced by json.Unmarshal into any) against the
// tool's input schema.
func (c *Catalog) Validate(name string, args any) error {
	i, ok := c.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := c.compiled[i].Validate(args); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := firstLeafValidationError(ve)
			loc := leaf.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			return fmt.Errorf("invalid arguments for %s at %s: %s", name, loc, leaf.Message)
		}
		return fmt.Errorf("invalid arguments for %s: %v", name, err)
	}
	return nil
}

// Suggest returns up to n catalog names that look like name, best first.
func (c *Catalog) Suggest(name string, n int) []string {
	if name == "" || n <= 0 {
		return nil
	}
	names := c.Names()

	ranks := fuzzy.RankFindNormalizedFold(name, names)
	if len(ranks) == 0 {
		maxDist := len(name) / 3
		if maxDist < 2 {
			maxDist = 2
		}
		for i, target := range names {
			if d := fuzzy.LevenshteinDistance(name, target); d <= maxDist {
				ranks = append(ranks, fuzzy.Rank{Source: name, Target: target, Distance: d, OriginalIndex: i})
			}
		}
	}
	sort.Stable(ranks)

	out := make([]string, 0, n)
	for _, r := range ranks {
		if len(out) == n {
			break
		}
		out = append(out, r.Target)
	}
	return out
}

func firstLeafValidationError(err *jsonschema.ValidationError) *jsonschema.ValidationError {
	if err == nil {
		return nil
	}
	for _, cause := range err.Causes {
		if leaf := firstLeafValidationError(cause); leaf != nil {
			return leaf
		}
	}
	return err
}
