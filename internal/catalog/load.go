package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed tools.json
var bundledTools []byte

// EmbeddedSource names the bundled definitions in a LoadResult.
const EmbeddedSource = "embedded:tools.json"

var (
	ErrEmpty         = errors.New("tool definition document contains no tools")
	ErrDuplicateName = errors.New("duplicate tool name")
	ErrInvalidTool   = errors.New("invalid tool definition")
)

// Outcome tags how a catalog was obtained.
type Outcome int

const (
	Loaded Outcome = iota
	FellBack
)

func (o Outcome) String() string {
	switch o {
	case Loaded:
		return "loaded"
	case FellBack:
		return "fell_back"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// LoadResult is the outcome of loading tool definitions. Catalog is never nil.
// Reason is set only when Outcome is FellBack.
type LoadResult struct {
	Catalog *Catalog
	Outcome Outcome
	Source  string
	Reason  error
}

// Load reads the tool-definition document at path, or the bundled definitions
// when path is empty. Any failure yields the single-entry fallback catalog.
func Load(path string) LoadResult {
	if strings.TrimSpace(path) == "" {
		return LoadEmbedded()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fallBack(path, fmt.Errorf("read tool definitions: %w", err))
	}
	return fromBytes(path, data)
}

// LoadEmbedded parses the definitions compiled into the binary.
func LoadEmbedded() LoadResult {
	return fromBytes(EmbeddedSource, bundledTools)
}

func fromBytes(source string, data []byte) LoadResult {
	c, err := Parse(data)
	if err != nil {
		return fallBack(source, fmt.Errorf("parse tool definitions %s: %w", source, err))
	}
	return LoadResult{Catalog: c, Outcome: Loaded, Source: source}
}

func fallBack(source string, reason error) LoadResult {
	return LoadResult{Catalog: Fallback(), Outcome: FellBack, Source: source, Reason: reason}
}

// Parse decodes a JSON array of tool descriptors. Names must be non-empty and
// unique and every input schema must compile.
func Parse(data []byte) (*Catalog, error) {
	var tools []ToolDescriptor
	if err := json.Unmarshal(data, &tools); err != nil {
		return nil, err
	}
	return New(tools)
}

// New builds a catalog from descriptors, preserving order.
func New(tools []ToolDescriptor) (*Catalog, error) {
	if len(tools) == 0 {
		return nil, ErrEmpty
	}

	c := &Catalog{
		tools:    make([]ToolDescriptor, 0, len(tools)),
		schemas:  make([]InputSchema, 0, len(tools)),
		compiled: make([]*jsonschema.Schema, 0, len(tools)),
		index:    make(map[string]int, len(tools)),
	}

	for i, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidTool, i)
		}
		if _, dup := c.index[t.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, t.Name)
		}
		if len(t.InputSchema) == 0 {
			return nil, fmt.Errorf("%w: %s has no inputSchema", ErrInvalidTool, t.Name)
		}

		var schema InputSchema
		if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("%w: %s inputSchema: %v", ErrInvalidTool, t.Name, err)
		}
		for _, req := range schema.Required {
			if _, ok := schema.Properties[req]; !ok {
				return nil, fmt.Errorf("%w: %s requires undeclared property %q", ErrInvalidTool, t.Name, req)
			}
		}
		compiled, err := jsonschema.CompileString(t.Name+".json", string(t.InputSchema))
		if err != nil {
			return nil, fmt.Errorf("%w: %s inputSchema: %v", ErrInvalidTool, t.Name, err)
		}

		c.index[t.Name] = len(c.tools)
		c.tools = append(c.tools, t)
		c.schemas = append(c.schemas, schema)
		c.compiled = append(c.compiled, compiled)
	}
	return c, nil
}

// fallbackTool is served when no tool definitions could be loaded.
var fallbackTool = ToolDescriptor{
	Name:        "search_bills",
	Description: "Search congressional bills by keyword.",
	InputSchema: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`),
}

// Fallback returns the single-entry catalog used when loading fails.
func Fallback() *Catalog {
	c, err := New([]ToolDescriptor{fallbackTool})
	if err != nil {
		panic("catalog: invalid fallback tool: " + err.Error())
	}
	return c
}
