package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/imago-ai/imago/pkg/types"
)

// FieldMapping binds one native field path (dot notation) to a canonical
// predicate.
type FieldMapping struct {
	Path      string `yaml:"path"`
	Predicate string `yaml:"predicate"`
	// Required fields fail ValidateNative when absent.
	Required bool `yaml:"required,omitempty"`
	// Repeated fields are native lists producing one statement per element.
	Repeated bool `yaml:"repeated,omitempty"`
	// Type restores the native value shape on the way back:
	// "string" (default), "number", "bool".
	Type string `yaml:"type,omitempty"`
}

// DefaultValue fills a native field FromCanonical left unset. Defaults apply
// after extensions are restored, never over them.
type DefaultValue struct {
	Path  string `yaml:"path"`
	Value any    `yaml:"value"`
}

// MappingTable is the declarative description of one framework's schema.
type MappingTable struct {
	Framework types.Framework `yaml:"framework"`
	Fields    []FieldMapping  `yaml:"fields"`
	Defaults  []DefaultValue  `yaml:"defaults,omitempty"`
}

// ParseMappingTable decodes and checks a YAML mapping table.
func ParseMappingTable(raw []byte) (*MappingTable, error) {
	var table MappingTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("failed to decode mapping table: %w", err)
	}
	if !table.Framework.Valid() {
		return nil, fmt.Errorf("mapping table is missing a framework tag")
	}
	if len(table.Fields) == 0 {
		return nil, fmt.Errorf("mapping table for %s has no field mappings", table.Framework)
	}
	for _, f := range table.Fields {
		if f.Path == "" || f.Predicate == "" {
			return nil, fmt.Errorf("mapping table for %s has a field missing path or predicate", table.Framework)
		}
	}
	return &table, nil
}

// mappingAdapter is the one generic engine behind every framework adapter.
type mappingAdapter struct {
	table       *MappingTable
	byPath      map[string]FieldMapping
	byPredicate map[string]FieldMapping
}

// NewMappingAdapter returns the adapter a mapping table describes.
func NewMappingAdapter(table *MappingTable) Adapter {
	a := &mappingAdapter{
		table:       table,
		byPath:      make(map[string]FieldMapping, len(table.Fields)),
		byPredicate: make(map[string]FieldMapping, len(table.Fields)),
	}
	for _, f := range table.Fields {
		a.byPath[f.Path] = f
		a.byPredicate[f.Predicate] = f
	}
	return a
}

func (a *mappingAdapter) Framework() types.Framework {
	return a.table.Framework
}

func (a *mappingAdapter) ToCanonical(ctx context.Context, agentID string, native map[string]any) (*types.CanonicalAgent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if agentID == "" {
		return nil, types.ErrEmptyAgentID
	}

	leaves := flatten("", native)

	agent := &types.CanonicalAgent{AgentID: agentID}
	mapped := 0
	for _, leaf := range leaves {
		mapping, ok := a.byPath[leaf.path]
		if !ok {
			// No canonical predicate: preserved, never dropped.
			agent.Extensions = append(agent.Extensions, types.Extension{
				Framework: a.table.Framework,
				Key:       leaf.path,
				Value:     leaf.value,
			})
			agent.Warnings = append(agent.Warnings, types.FidelityWarning{
				Framework: a.table.Framework,
				Field:     leaf.path,
				Reason:    "has no canonical predicate; preserved as extension",
			})
			continue
		}
		mapped++
		for _, object := range leafObjects(leaf, mapping) {
			agent.Statements = append(agent.Statements, types.Statement{
				Subject:   agentID,
				Predicate: mapping.Predicate,
				Object:    object,
			})
		}
	}

	if len(leaves) == 0 {
		agent.Fidelity = 1.0
	} else {
		agent.Fidelity = float64(mapped) / float64(len(leaves))
	}
	return agent, nil
}

func (a *mappingAdapter) FromCanonical(ctx context.Context, agent *types.CanonicalAgent) (map[string]any, []types.FidelityWarning, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	native := make(map[string]any)
	var warnings []types.FidelityWarning

	for _, mapping := range a.table.Fields {
		objects := objectsFor(agent.Statements, mapping.Predicate)
		if len(objects) == 0 {
			continue
		}
		if mapping.Repeated {
			values := make([]any, len(objects))
			for i, o := range objects {
				values[i] = restoreValue(o, mapping.Type)
			}
			setPath(native, mapping.Path, values)
			continue
		}
		setPath(native, mapping.Path, restoreValue(objects[0], mapping.Type))
	}

	// Extensions restore before defaults; a foreign extension cannot be
	// restored into this framework's shape and degrades fidelity instead of
	// failing.
	for _, ext := range agent.Extensions {
		if ext.Framework != a.table.Framework {
			warnings = append(warnings, types.FidelityWarning{
				Framework: a.table.Framework,
				Field:     ext.Key,
				Reason:    fmt.Sprintf("extension recorded for %s cannot be restored", ext.Framework),
			})
			continue
		}
		setPath(native, ext.Key, ext.Value)
	}

	for _, def := range a.table.Defaults {
		if _, ok := lookupPath(native, def.Path); !ok {
			setPath(native, def.Path, def.Value)
		}
	}
	return native, warnings, nil
}

func (a *mappingAdapter) ValidateNative(native map[string]any) *types.ValidationResult {
	result := &types.ValidationResult{Valid: true}
	for _, mapping := range a.table.Fields {
		value, ok := lookupPath(native, mapping.Path)
		if !ok {
			if mapping.Required {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("missing required field %q", mapping.Path))
			}
			continue
		}
		if mapping.Repeated {
			if _, isList := value.([]any); !isList {
				result.Valid = false
				result.Errors = append(result.Errors, fmt.Sprintf("field %q must be a list", mapping.Path))
			}
			continue
		}
		if mapping.Required && value == "" {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("required field %q is empty", mapping.Path))
		}
	}
	return result
}

// leaf is one addressable native field: a scalar or a list at a dot path.
type leaf struct {
	path  string
	value any
}

// flatten walks nested maps into dot-path leaves. Lists stay whole at their
// path; a repeated mapping expands them, anything else rides along as an
// extension value.
func flatten(prefix string, node map[string]any) []leaf {
	keys := make([]string, 0, len(node))
	for k := range node {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var leaves []leaf
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if child, ok := node[k].(map[string]any); ok {
			leaves = append(leaves, flatten(path, child)...)
			continue
		}
		leaves = append(leaves, leaf{path: path, value: node[k]})
	}
	return leaves
}

func leafObjects(l leaf, mapping FieldMapping) []string {
	if mapping.Repeated {
		if items, ok := l.value.([]any); ok {
			objects := make([]string, len(items))
			for i, item := range items {
				objects[i] = objectString(item)
			}
			return objects
		}
	}
	return []string{objectString(l.value)}
}

// objectString renders a native value as a statement object.
func objectString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(raw)
	}
}

// restoreValue converts a statement object back to the native value shape.
func restoreValue(object, typ string) any {
	switch typ {
	case "number":
		if f, err := strconv.ParseFloat(object, 64); err == nil {
			return f
		}
	case "bool":
		if b, err := strconv.ParseBool(object); err == nil {
			return b
		}
	}
	return object
}

func objectsFor(statements []types.Statement, predicate string) []string {
	var objects []string
	for _, st := range statements {
		if st.Predicate == predicate {
			objects = append(objects, st.Object)
		}
	}
	return objects
}

func setPath(node map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = value
}

func lookupPath(node map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			return nil, false
		}
		node = child
	}
	v, ok := node[parts[len(parts)-1]]
	return v, ok
}
