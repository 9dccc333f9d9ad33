package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/vburojevic/hotswap/internal/cache"
	"github.com/vburojevic/hotswap/internal/loader"
	"github.com/vburojevic/hotswap/internal/output"
)

// LoadCmd loads a session once and reports its screens
type LoadCmd struct {
	previewFlags `embed:""`
}

// signalContext returns a context cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// Run executes the load command
func (c *LoadCmd) Run(globals *Globals) error {
	ctx, cancel := signalContext()
	defer cancel()

	p, strategy, err := c.open(ctx, globals)
	if err != nil {
		return err
	}
	defer p.Close()

	start := time.Now()
	if err := p.Load(ctx); err != nil {
		return loadError(globals, err)
	}
	loaded := loadedRecord(p, strategy, time.Since(start))
	screens := screenRecords(p)

	if globals.Format == "ndjson" {
		w := output.NewNDJSONWriter(globals.Stdout)
		if err := w.Write(loaded); err != nil {
			return err
		}
		for _, s := range screens {
			if err := w.Write(s); err != nil {
				return err
			}
		}
		return nil
	}

	if err := globals.recordWriter(globals.Stdout).Write(loaded); err != nil {
		return err
	}
	return writeScreenTable(globals, screens)
}

// open resolves the session and builds an unloaded preview
func (c *LoadCmd) open(ctx context.Context, globals *Globals) (loader.Preview, string, error) {
	client, err := newAPIClient(globals, c.serverURL(globals))
	if err != nil {
		return nil, "", outputErrorCommon(globals, "INVALID_SERVER", err.Error(), "set --server or server.url to an http(s) URL")
	}
	sc, err := newSessionContext(globals, client, nil)
	if err != nil {
		return nil, "", outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	s, err := c.resolveSession(ctx, globals, sc)
	if err != nil {
		if errors.Is(err, errNoSession) {
			return nil, "", outputErrorCommon(globals, "NO_SESSION", err.Error(), "pass --session or run 'hotswap session switch <id>'")
		}
		return nil, "", outputErrorCommon(globals, "SESSION_STATE", err.Error())
	}
	if err := validateStrategy(globals, c.strategy(globals), c.baselineDir(globals)); err != nil {
		return nil, "", err
	}
	p, err := c.newPreview(globals, client, s.ID, cache.New())
	if err != nil {
		return nil, "", outputErrorCommon(globals, "INVALID_FLAGS", err.Error())
	}
	return p, c.strategy(globals), nil
}

func writeScreenTable(globals *Globals, screens []*output.Screen) error {
	table := tablewriter.NewWriter(globals.Stdout)
	table.Header("SCREEN", "NAME", "ORIGIN", "STATE", "MODIFIED")
	for _, s := range screens {
		state := "ok"
		if s.Stub {
			state = "stub"
			if s.Error != "" {
				state += ": " + truncate(s.Error, 48)
			}
		}
		if err := table.Append([]string{s.ScreenID, s.Name, s.Origin, state, s.LastModified}); err != nil {
			return err
		}
	}
	return table.Render()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
