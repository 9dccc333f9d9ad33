package cli

import (
	"fmt"

	"github.com/vburojevic/hotswap/internal/output"
)

// Set at build time with -ldflags
var (
	Version = "dev"
	Commit  = "none"
)

// VersionCmd prints version information
type VersionCmd struct{}

// Run executes the version command
func (c *VersionCmd) Run(globals *Globals) error {
	if globals.Format == "ndjson" {
		return output.NewNDJSONWriter(globals.Stdout).Write(map[string]interface{}{
			"type":          "version",
			"schemaVersion": output.SchemaVersion,
			"version":       Version,
			"commit":        Commit,
		})
	}
	fmt.Fprintf(globals.Stdout, "hotswap version %s (%s)\n", Version, Commit)
	return nil
}
