// Package cli implements the hotswap command line.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/config"
	"github.com/vburojevic/hotswap/internal/output"
)

// CLI is the root command
type CLI struct {
	Format  string `short:"f" enum:"ndjson,text" default:"${config_format}" help:"Output format (ndjson or text)"`
	Quiet   bool   `short:"q" help:"Suppress informational output"`
	Verbose bool   `short:"v" help:"Debug logging to stderr (JSON)"`

	Load    LoadCmd    `cmd:"" help:"Load a session once and list its screens"`
	Watch   WatchCmd   `cmd:"" help:"Load a session and apply live changes until interrupted"`
	UI      UICmd      `cmd:"" name:"ui" help:"Interactive preview of a live session"`
	Render  RenderCmd  `cmd:"" help:"Render one screen (or the app) to an element tree"`
	Session SessionCmd `cmd:"" help:"Show, switch or clear the active session"`
	Config  ConfigCmd  `cmd:"" help:"Show or generate configuration"`
	Schema  SchemaCmd  `cmd:"" help:"Print JSON Schema for NDJSON records"`
	Version VersionCmd `cmd:"" help:"Print version"`
}

// Globals carries flags and shared state into every command
type Globals struct {
	Format  string
	Quiet   bool
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config

	logger *zap.Logger
}

// NewGlobalsWithConfig builds globals from parsed flags, falling back to config
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	if cfg == nil {
		cfg = config.Default()
	}
	format := c.Format
	if format == "" {
		format = cfg.Format
	}
	return &Globals{
		Format:  format,
		Quiet:   c.Quiet || cfg.Quiet,
		Verbose: c.Verbose || cfg.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
}

// Logger returns the process logger, building it on first use
func (g *Globals) Logger() *zap.Logger {
	if g.logger == nil {
		g.logger = newLogger(g)
	}
	return g.logger
}

// Debug logs a formatted debug line when --verbose is set
func (g *Globals) Debug(format string, args ...interface{}) {
	if !g.Verbose {
		return
	}
	g.Logger().Debug(fmt.Sprintf(format, args...))
}

// recordWriter picks the output encoding for w
func (g *Globals) recordWriter(w io.Writer) output.RecordWriter {
	if g.Format == "ndjson" {
		return output.NewNDJSONWriter(w)
	}
	return output.NewTextWriter(w).WithColor(colorEnabled(w))
}

// colorEnabled reports whether w is a terminal that should get styled text
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
