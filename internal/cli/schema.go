package cli

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/output"
)

// SchemaCmd outputs JSON Schema for hotswap output types
type SchemaCmd struct {
	Type []string `short:"t" help:"Output types to include (see 'hotswap schema --list'). Default: all"`
	List bool     `help:"List record types instead of printing schemas"`
}

type recordSchema struct {
	name        string
	title       string
	description string
	sample      interface{}
}

// recordSchemas lists every NDJSON record type in output order
var recordSchemas = []recordSchema{
	{"ready", "Ready", "Command resolved its session and strategy", output.Ready{}},
	{"session_loaded", "Session Loaded", "Summary of a completed session load", output.Loaded{}},
	{"screen", "Screen", "One resolvable screen and where its definition came from", output.Screen{}},
	{"change", "Change", "Mutation applied by the loader", output.Change{}},
	{"sync", "Sync Event", "Live-sync message handled, ignored, dropped or failed", output.SyncEvent{}},
	{"status", "Status", "Live-sync connection status change", output.Status{}},
	{"session_switch", "Session Switch", "Active session changed", domain.SessionSwitch{}},
	{"session_end", "Session End", "Activity summary for a session", output.SessionEnd{}},
	{"render", "Render", "Rendered element tree", output.Render{}},
	{"trigger", "Trigger", "Hook command run by watch (type is trigger or trigger_error)", output.Trigger{}},
	{"tmux", "Tmux", "Tmux session mirroring watch output", output.Tmux{}},
	{"watch_plan", "Watch Plan", "Resolved watch settings printed by --dry-run-json", watchPlan{}},
	{"error", "Error", "Machine-readable failure", output.ErrorRecord{}},
}

// Run executes the schema command
func (c *SchemaCmd) Run(globals *Globals) error {
	if c.List {
		c.outputTextHelp(globals)
		return nil
	}

	selected := map[string]bool{}
	for _, t := range c.Type {
		for _, part := range strings.Split(t, ",") {
			if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
				selected[part] = true
			}
		}
	}

	defs := map[string]interface{}{}
	for _, rs := range recordSchemas {
		if len(selected) > 0 && !selected[rs.name] {
			continue
		}
		defs[rs.name] = rs.schema()
	}

	out := map[string]interface{}{
		"$schema":     "http://json-schema.org/draft-07/schema#",
		"title":       "hotswap Output Schemas",
		"description": "JSON Schema definitions for all hotswap NDJSON output types",
		"definitions": defs,
	}

	encoder := json.NewEncoder(globals.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func (rs recordSchema) schema() map[string]interface{} {
	props := map[string]interface{}{}
	var required []string

	t := reflect.TypeOf(rs.sample)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}
		name, omitempty := jsonName(f)
		if name == "" {
			continue
		}
		prop := typeSchema(f.Type)
		switch name {
		case "type":
			if rs.name == "trigger" {
				prop["enum"] = []string{"trigger", "trigger_error"}
			} else {
				prop["const"] = rs.name
			}
		case "timestamp":
			prop["format"] = "date-time"
		}
		props[name] = prop
		if !omitempty {
			required = append(required, name)
		}
	}

	return map[string]interface{}{
		"type":        "object",
		"title":       rs.title,
		"description": rs.description,
		"properties":  props,
		"required":    required,
	}
}

func jsonName(f reflect.StructField) (string, bool) {
	tag := f.Tag.Get("json")
	if tag == "-" {
		return "", false
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		name = f.Name
	}
	omit := false
	for _, p := range parts[1:] {
		if p == "omitempty" {
			omit = true
		}
	}
	return name, omit
}

func typeSchema(t reflect.Type) map[string]interface{} {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.String:
		return map[string]interface{}{"type": "string"}
	case reflect.Bool:
		return map[string]interface{}{"type": "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]interface{}{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]interface{}{"type": "number"}
	case reflect.Slice, reflect.Array:
		return map[string]interface{}{"type": "array", "items": typeSchema(t.Elem())}
	default:
		return map[string]interface{}{"type": "object"}
	}
}

// Helper to output a quick reference
func (c *SchemaCmd) outputTextHelp(globals *Globals) {
	fmt.Fprintln(globals.Stdout, "hotswap Output Types:")
	fmt.Fprintln(globals.Stdout, "")
	for _, rs := range recordSchemas {
		fmt.Fprintf(globals.Stdout, "  %-15s - %s\n", rs.name, rs.description)
	}
	fmt.Fprintln(globals.Stdout, "")
	fmt.Fprintln(globals.Stdout, "Use --type to filter: hotswap schema --type change,error")
}
