package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/vburojevic/hotswap/internal/api"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
)

// outputErrorCommon normalizes error emission across commands, respecting
// ndjson vs text formats so callers always get machine-readable failures.
func outputErrorCommon(globals *Globals, code, message string, hint ...string) error {
	if globals != nil && globals.Format == "ndjson" {
		_ = output.NewNDJSONWriter(globals.Stdout).WriteError(code, message, hint...)
	} else if globals != nil {
		fmt.Fprintf(globals.Stderr, "Error [%s]: %s", code, message)
		if len(hint) > 0 && hint[0] != "" {
			fmt.Fprintf(globals.Stderr, " (hint: %s)", hint[0])
		}
		fmt.Fprintln(globals.Stderr)
	}
	return errors.New(message)
}

// loadError reports a fatal session load with a hint for the failing stage
func loadError(globals *Globals, err error) error {
	if errors.Is(err, context.Canceled) {
		return outputErrorCommon(globals, "INTERRUPTED", err.Error())
	}

	hint := "check the server URL, session id and baseline directory"
	var status *api.StatusError
	var le *loader.SessionLoadError
	switch {
	case errors.As(err, &status) && status.NotFound():
		hint = "the server does not know this session; run 'hotswap session show' or pass --session"
	case errors.As(err, &status):
		hint = fmt.Sprintf("the authoring server answered %s", status.Status)
	case errors.As(err, &le) && le.Stage != "":
		hint = fmt.Sprintf("failed to %s; %s", le.Stage, hint)
	}
	return outputErrorCommon(globals, "LOAD_FAILED", err.Error(), hint)
}
