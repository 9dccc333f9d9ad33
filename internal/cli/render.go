package cli

import (
	"encoding/json"
	"fmt"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
)

// RenderCmd renders one screen, or the app root, to an element tree
type RenderCmd struct {
	previewFlags `embed:""`

	Screen string `arg:"" optional:"" help:"Screen id (default: the app root)"`
	Props  string `help:"Props as a JSON object"`
}

// Run executes the render command
func (c *RenderCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	props := map[string]interface{}{}
	if c.Props != "" {
		if err := json.Unmarshal([]byte(c.Props), &props); err != nil {
			return outputErrorCommon(globals, "INVALID_PROPS", fmt.Sprintf("invalid --props: %v", err), `pass a JSON object, e.g. --props '{"title":"Hi"}'`)
		}
	}

	p, _, err := (&LoadCmd{previewFlags: c.previewFlags}).open(ctx, globals)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.Load(ctx); err != nil {
		return loadError(globals, err)
	}

	var (
		comp   domain.Component
		origin = loader.OriginNone
		id     = c.Screen
	)
	if id == "" {
		comp = p.App()
		id = "app"
	} else {
		var ok bool
		comp, origin, ok = p.Resolve(id)
		if !ok {
			return outputErrorCommon(globals, "SCREEN_NOT_FOUND", fmt.Sprintf("screen %q not found in session %s", id, p.SessionID()), "run 'hotswap load' to list screens")
		}
	}

	tree := evaluator.SafeRender(id, comp, props)
	return globals.recordWriter(globals.Stdout).Write(&output.Render{
		Type:          "render",
		SchemaVersion: output.SchemaVersion,
		SessionID:     p.SessionID(),
		ScreenID:      c.Screen,
		Origin:        string(origin),
		Tree:          tree,
	})
}
