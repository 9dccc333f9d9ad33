package cli

import (
	"fmt"

	"github.com/vburojevic/hotswap/internal/config"
	"github.com/vburojevic/hotswap/internal/output"
)

// ConfigCmd groups configuration commands
type ConfigCmd struct {
	Show     ConfigShowCmd     `cmd:"" default:"1" help:"Show the effective configuration"`
	Path     ConfigPathCmd     `cmd:"" help:"Show the config file in use"`
	Generate ConfigGenerateCmd `cmd:"" help:"Print a sample configuration file"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(map[string]interface{}{
			"type":          "config",
			"schemaVersion": output.SchemaVersion,
			"config_file":   config.ConfigFile(),
			"format":        globals.Format,
			"quiet":         globals.Quiet,
			"verbose":       globals.Verbose,
			"server": map[string]interface{}{
				"url": cfg.Server.URL,
			},
			"sync": map[string]interface{}{
				"url":             cfg.Sync.URL,
				"max_retries":     cfg.Sync.MaxRetries,
				"backoff_base":    cfg.Sync.BackoffBase.String(),
				"connect_timeout": cfg.Sync.ConnectTimeout.String(),
				"strict_ordering": cfg.Sync.StrictOrdering,
			},
			"session": map[string]interface{}{
				"host_retries":  cfg.Session.HostRetries,
				"host_interval": cfg.Session.HostInterval.String(),
				"slot_path":     cfg.Session.SlotPath,
			},
			"evaluator": map[string]interface{}{
				"timeout": cfg.Evaluator.Timeout.String(),
			},
			"defaults": map[string]interface{}{
				"strategy":     cfg.Defaults.Strategy,
				"baseline_dir": cfg.Defaults.BaselineDir,
			},
		})
	}

	w := globals.Stdout
	fmt.Fprintln(w, "Current Configuration:")
	if path := config.ConfigFile(); path != "" {
		fmt.Fprintf(w, "  (from %s)\n", path)
	}
	fmt.Fprintf(w, "  format:  %s\n", globals.Format)
	fmt.Fprintf(w, "  quiet:   %t\n", globals.Quiet)
	fmt.Fprintf(w, "  verbose: %t\n", globals.Verbose)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Server:")
	fmt.Fprintf(w, "  url: %s\n", cfg.Server.URL)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sync:")
	fmt.Fprintf(w, "  url:             %s\n", orDefault(cfg.Sync.URL, "(derived from server url)"))
	fmt.Fprintf(w, "  max_retries:     %d\n", cfg.Sync.MaxRetries)
	fmt.Fprintf(w, "  backoff_base:    %s\n", cfg.Sync.BackoffBase)
	fmt.Fprintf(w, "  connect_timeout: %s\n", cfg.Sync.ConnectTimeout)
	fmt.Fprintf(w, "  strict_ordering: %t\n", cfg.Sync.StrictOrdering)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Session:")
	fmt.Fprintf(w, "  host_retries:  %d\n", cfg.Session.HostRetries)
	fmt.Fprintf(w, "  host_interval: %s\n", cfg.Session.HostInterval)
	fmt.Fprintf(w, "  slot_path:     %s\n", orDefault(cfg.Session.SlotPath, "(default)"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Evaluator:")
	fmt.Fprintf(w, "  timeout: %s\n", cfg.Evaluator.Timeout)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Defaults:")
	fmt.Fprintf(w, "  strategy:     %s\n", cfg.Defaults.Strategy)
	fmt.Fprintf(w, "  baseline_dir: %s\n", orDefault(cfg.Defaults.BaselineDir, "(none)"))
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ConfigPathCmd prints the config file in use
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(map[string]interface{}{
			"type":          "config_path",
			"schemaVersion": output.SchemaVersion,
			"path":          path,
			"found":         path != "",
		})
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No configuration file found")
		fmt.Fprintln(globals.Stdout, "Create one with: hotswap config generate > ~/.hotswap.yaml")
		return nil
	}
	fmt.Fprintf(globals.Stdout, "Config file: %s\n", path)
	return nil
}

// ConfigGenerateCmd prints a sample configuration
type ConfigGenerateCmd struct{}

const sampleConfig = `# hotswap configuration file
# Place at ./hotswap.yaml, ~/.hotswap.yaml or ~/.config/hotswap/hotswap.yaml
# Every key can be overridden with HOTSWAP_* environment variables.

# Output format: ndjson or text
format: ndjson
quiet: false
verbose: false

server:
  # Authoring API
  url: http://localhost:3000

sync:
  # Live-sync URL; derived from server.url when empty
  url: ""
  max_retries: 5
  backoff_base: 1s
  connect_timeout: 10s
  # Drop screen updates older than the definition already held
  strict_ordering: true

session:
  host_retries: 5
  host_interval: 200ms
  # Active-session slot; defaults to the user config directory
  slot_path: ""

evaluator:
  timeout: 2s

defaults:
  # bundle or override
  strategy: bundle
  baseline_dir: ""
`

// Run executes the config generate command
func (c *ConfigGenerateCmd) Run(globals *Globals) error {
	_, err := fmt.Fprint(globals.Stdout, sampleConfig)
	return err
}
