// Package adapter turns host tool invocations into single calls against the
// remote data service and normalizes every failure into an *Error.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golovatskygroup/billy-mcp/internal/catalog"
	"github.com/golovatskygroup/billy-mcp/internal/config"
	"github.com/golovatskygroup/billy-mcp/internal/remote"
	"github.com/golovatskygroup/billy-mcp/pkg/mcp"
)

// Argument names the credentials are injected under.
const (
	ArgAPIKey          = "CONGRESS_API_KEY"
	ArgDefaultCongress = "DEFAULT_CONGRESS"
)

// ServerInfoURI is the one resource the adapter can describe.
const ServerInfoURI = "billy://server-info"

// Remote is the slice of the remote client the adapter depends on.
type Remote interface {
	Info(ctx context.Context) (*remote.Info, error)
	CallTool(ctx context.Context, name string, args map[string]any) (json.RawMessage, error)
}

type Options struct {
	Catalog     *catalog.Catalog
	Remote      Remote
	Credentials config.Credentials
	// ValidateArgs checks arguments against the tool's input schema before
	// calling out. Off by default: the remote service is the authority.
	ValidateArgs bool
	Logger       *slog.Logger
}

// Adapter holds only read-only state and is safe for concurrent use.
type Adapter struct {
	catalog      *catalog.Catalog
	remote       Remote
	creds        config.Credentials
	validateArgs bool
	logger       *slog.Logger
}

func New(opts Options) *Adapter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{
		catalog:      opts.Catalog,
		remote:       opts.Remote,
		creds:        opts.Credentials,
		validateArgs: opts.ValidateArgs,
		logger:       logger,
	}
}

// Catalog returns the catalog the adapter dispatches against.
func (a *Adapter) Catalog() *catalog.Catalog { return a.catalog }

// Advertise returns every catalog tool in catalog order.
func (a *Adapter) Advertise() []catalog.ToolDescriptor {
	return a.catalog.List()
}

// Resources lists the describable resources.
func (a *Adapter) Resources() []mcp.Resource {
	return []mcp.Resource{{
		URI:         ServerInfoURI,
		Name:        "Billy MCP Server Information",
		Description: "Information about the connected Billy MCP Server",
		MimeType:    "application/json",
	}}
}

// Describe fetches the server-info document for ServerInfoURI.
func (a *Adapter) Describe(ctx context.Context, uri string) (mcp.ContentBlock, error) {
	if uri != ServerInfoURI {
		return mcp.ContentBlock{}, &Error{Kind: KindUnknownResource, Message: "Unknown resource: " + uri}
	}

	info, err := a.remote.Info(ctx)
	if err != nil {
		e := fromRemote(err)
		a.logger.WarnContext(ctx, "describe failed", "uri", uri, "kind", e.Kind.String(), "error", err)
		return mcp.ContentBlock{}, e
	}

	var pretty bytes.Buffer
	text := string(info.Raw)
	if err := json.Indent(&pretty, info.Raw, "", "  "); err == nil {
		text = pretty.String()
	}
	return mcp.ContentBlock{URI: uri, MimeType: "application/json", Text: text}, nil
}

// Invoke validates name against the catalog, merges credentials into args and
// performs exactly one remote call. The remote result is returned verbatim.
func (a *Adapter) Invoke(ctx context.Context, name string, args map[string]any) (json.RawMessage, error) {
	if !a.catalog.Has(name) {
		msg := "Unknown tool: " + name
		if s := a.catalog.Suggest(name, 3); len(s) > 0 {
			msg += fmt.Sprintf(" (did you mean: %s?)", strings.Join(s, ", "))
		}
		a.logger.WarnContext(ctx, "unknown tool", "tool", name)
		return nil, &Error{Kind: KindUnknownTool, Message: msg}
	}

	if a.validateArgs {
		if err := a.catalog.Validate(name, args); err != nil {
			return nil, &Error{Kind: KindInvalidArguments, Message: err.Error(), Err: err}
		}
	}

	start := time.Now()
	result, err := a.remote.CallTool(ctx, name, MergeCredentials(args, a.creds))
	if err != nil {
		e := fromRemote(err)
		a.logger.WarnContext(ctx, "tool call failed",
			"tool", name, "kind", e.Kind.String(), "duration", time.Since(start), "error", err)
		return nil, e
	}

	a.logger.DebugContext(ctx, "tool call", "tool", name, "duration", time.Since(start), "bytes", len(result))
	return result, nil
}

// MergeCredentials returns a shallow copy of args with the credential fields
// set. Credentials win on collision; an unset credential removes the key.
func MergeCredentials(args map[string]any, creds config.Credentials) map[string]any {
	out := make(map[string]any, len(args)+2)
	for k, v := range args {
		out[k] = v
	}
	setOrDelete(out, ArgAPIKey, creds.APIKey)
	setOrDelete(out, ArgDefaultCongress, creds.DefaultCongress)
	return out
}

func setOrDelete(m map[string]any, key, value string) {
	if value == "" {
		delete(m, key)
		return
	}
	m[key] = value
}

// CompareRemote reports tool names the service lists but the catalog lacks,
// and the reverse. It never changes what Advertise returns.
func (a *Adapter) CompareRemote(ctx context.Context) (onlyRemote, onlyLocal []string, err error) {
	info, err := a.remote.Info(ctx)
	if err != nil {
		return nil, nil, fromRemote(err)
	}

	remoteNames := make(map[string]struct{}, len(info.AvailableTools))
	for _, t := range info.AvailableTools {
		remoteNames[t.Name] = struct{}{}
		if !a.catalog.Has(t.Name) {
			onlyRemote = append(onlyRemote, t.Name)
		}
	}
	for _, name := range a.catalog.Names() {
		if _, ok := remoteNames[name]; !ok {
			onlyLocal = append(onlyLocal, name)
		}
	}
	return onlyRemote, onlyLocal, nil
}
