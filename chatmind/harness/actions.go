package harness

import (
	"encoding/json"
	"fmt"
	"strings"

	radix "github.com/armon/go-radix"
	"github.com/xeipuuv/gojsonschema"
)

// Action is a structured instruction emitted by the model requesting a
// side effect or a data fetch.
type Action struct {
	Type    string         `json:"type"`
	Options map[string]any `json:"options,omitempty"`
	// Command holds "name" or "name subcommand" for delegated command
	// execution.
	Command string `json:"command,omitempty"`
}

// CommandParts splits the delegated command descriptor into name and
// subcommand.
func (a Action) CommandParts() (name, subcommand string) {
	fields := strings.Fields(a.Command)
	if len(fields) == 0 {
		return "", ""
	}
	if len(fields) == 1 {
		return fields[0], ""
	}
	return fields[0], strings.Join(fields[1:], " ")
}

// ActionKind selects the executor dispatch path for a tag.
type ActionKind int

const (
	KindFetch   ActionKind = iota // read-only lookup, "Data:" results
	KindSearch                    // read-only search, "Found:" results
	KindBulk                      // background population
	KindCommand                   // delegated command execution
)

// ActionSpec is the registered contract of one action tag.
type ActionSpec struct {
	Kind          ActionKind
	RequiresScope bool   // needs a guild; short-circuited in DMs
	Triggering    bool   // effect changes information the model should now see
	Schema        []byte // JSON schema for the options bag, nil for none
}

// Well-known action tags.
const (
	ActionExecuteCommand = "execute_command"
	ActionGetServerInfo  = "get_server_info"
	ActionGetRoleInfo    = "get_role_info"
	ActionGetChannelList = "get_channel_list"
	ActionSearchMember   = "search_member"
	ActionRefreshMembers = "refresh_member_cache"
)

// dynamicFetchPrefixes is the reserved dynamic-fetch tag family: tags
// with these prefixes are accepted without options validation so newer
// fetch types keep working against an older registry.
var dynamicFetchPrefixes = []string{"get_", "search_", "fetch_"}

// Registry resolves action tags to their contracts.
type Registry struct {
	specs    map[string]ActionSpec
	dynamic  *radix.Tree
	compiled map[string]*gojsonschema.Schema
}

// NewRegistry creates a registry with the built-in action tags.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		specs:    make(map[string]ActionSpec),
		dynamic:  radix.New(),
		compiled: make(map[string]*gojsonschema.Schema),
	}
	for _, p := range dynamicFetchPrefixes {
		r.dynamic.Insert(p, struct{}{})
	}

	builtins := map[string]ActionSpec{
		ActionGetServerInfo: {Kind: KindFetch, RequiresScope: true, Triggering: true},
		ActionGetRoleInfo: {Kind: KindFetch, RequiresScope: true, Triggering: true,
			Schema: []byte(`{"type":"object","required":["role_name"],"properties":{"role_name":{"type":"string","minLength":1}}}`)},
		ActionGetChannelList: {Kind: KindFetch, RequiresScope: true, Triggering: true},
		ActionSearchMember: {Kind: KindSearch, RequiresScope: true, Triggering: true,
			Schema: []byte(`{"type":"object","required":["query"],"properties":{"query":{"type":"string","minLength":1}}}`)},
		ActionRefreshMembers: {Kind: KindBulk, RequiresScope: true, Triggering: true},
		ActionExecuteCommand: {Kind: KindCommand, Triggering: false,
			Schema: []byte(`{"type":"object"}`)},
	}
	for tag, spec := range builtins {
		if err := r.Register(tag, spec); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a tag's contract, compiling its schema.
func (r *Registry) Register(tag string, spec ActionSpec) error {
	if spec.Schema != nil {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(spec.Schema))
		if err != nil {
			return fmt.Errorf("invalid schema for action %s: %w", tag, err)
		}
		r.compiled[tag] = compiled
	}
	r.specs[tag] = spec
	return nil
}

// Spec returns the registered contract for a tag.
func (r *Registry) Spec(tag string) (ActionSpec, bool) {
	spec, ok := r.specs[tag]
	return spec, ok
}

// IsDynamicFetch reports whether the tag belongs to the reserved
// dynamic-fetch family.
func (r *Registry) IsDynamicFetch(tag string) bool {
	prefix, _, ok := r.dynamic.LongestPrefix(tag)
	return ok && prefix != tag
}

// Validate checks the structural contract of an action: a tag must be
// present, and registered tags must carry schema-valid options. Tags of
// the dynamic-fetch family that are absent from the registry pass
// without options validation; other unknown tags are left to the
// executor's fallback.
func (r *Registry) Validate(a Action) error {
	if strings.TrimSpace(a.Type) == "" {
		return fmt.Errorf("action is missing a type")
	}

	schema, ok := r.compiled[a.Type]
	if !ok {
		return nil
	}

	options := a.Options
	if options == nil {
		options = map[string]any{}
	}
	doc, err := json.Marshal(options)
	if err != nil {
		return fmt.Errorf("action %s has unserializable options: %w", a.Type, err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("action %s options validation failed: %w", a.Type, err)
	}
	if !result.Valid() {
		var reasons []string
		for _, e := range result.Errors() {
			reasons = append(reasons, e.String())
		}
		return fmt.Errorf("action %s has invalid options: %s", a.Type, strings.Join(reasons, "; "))
	}
	return nil
}

// RequiresScope reports whether the tag needs a guild scope. Unknown
// dynamic-fetch tags are assumed to read guild data.
func (r *Registry) RequiresScope(tag string) bool {
	if spec, ok := r.specs[tag]; ok {
		return spec.RequiresScope
	}
	return r.IsDynamicFetch(tag)
}

// Triggering reports whether executing the tag changes information the
// model should see in a follow-up call.
func (r *Registry) Triggering(tag string) bool {
	if spec, ok := r.specs[tag]; ok {
		return spec.Triggering
	}
	return r.IsDynamicFetch(tag)
}
