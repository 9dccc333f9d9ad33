package cli

import (
	"fmt"
	"os"
)

// validateFlags centralizes common flag combinations to keep behavior consistent.
func validateFlags(globals *Globals, dryRunJSON bool, tmux bool) error {
	// dry-run-json requires ndjson and no tmux
	if dryRunJSON && tmux {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--dry-run-json cannot be combined with --tmux", "drop --tmux or remove --dry-run-json")
	}
	if dryRunJSON && globals != nil && globals.Format != "ndjson" {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--dry-run-json requires ndjson output", "add --format ndjson or remove --dry-run-json")
	}
	// quiet + text would print nothing useful
	if globals != nil && globals.Format == "text" && globals.Quiet {
		return outputErrorCommon(globals, "INVALID_FLAGS", "--quiet is only supported with ndjson output", "switch to --format ndjson or drop --quiet")
	}
	return nil
}

// validateStrategy checks the loading strategy before anything is fetched.
// The override strategy needs a readable baseline directory.
func validateStrategy(globals *Globals, strategy, baselineDir string) error {
	switch strategy {
	case strategyBundle:
		return nil
	case strategyOverride:
		if baselineDir == "" {
			return outputErrorCommon(globals, "INVALID_FLAGS", "override strategy needs a baseline directory", "pass --baseline or set defaults.baseline_dir")
		}
		info, err := os.Stat(baselineDir)
		if err != nil {
			return outputErrorCommon(globals, "INVALID_FLAGS", fmt.Sprintf("baseline directory: %v", err), "point --baseline at a built application directory")
		}
		if !info.IsDir() {
			return outputErrorCommon(globals, "INVALID_FLAGS", fmt.Sprintf("baseline %s is not a directory", baselineDir), "point --baseline at a built application directory")
		}
		return nil
	default:
		return outputErrorCommon(globals, "INVALID_FLAGS", fmt.Sprintf("unknown strategy %q", strategy), "use --strategy bundle or --strategy override")
	}
}
