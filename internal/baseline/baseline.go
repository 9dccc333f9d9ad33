// Package baseline loads the real, already-built application that session
// overrides are layered on.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"howett.net/plist"

	"github.com/vburojevic/hotswap/internal/domain"
	"github.com/vburojevic/hotswap/internal/evaluator"
)

// DefaultBundle is the JS bundle file name used when Info.plist names none
const DefaultBundle = "main.jsbundle"

// ErrNoApp is returned when the bundle exports no application component
var ErrNoApp = errors.New("baseline bundle exports no app component")

// Info is the subset of Info.plist the baseline needs
type Info struct {
	BundleID    string `plist:"CFBundleIdentifier"`
	DisplayName string `plist:"CFBundleDisplayName"`
	BundleName  string `plist:"CFBundleName"`
	Version     string `plist:"CFBundleShortVersionString"`
	Bundle      string `plist:"HotswapBundle"`
	// InitialRoute names the screen the app opens on
	InitialRoute string `plist:"HotswapInitialRoute"`
}

// Name returns the display name, falling back to the bundle name
func (i Info) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.BundleName
}

// ReadInfo decodes dir/Info.plist. XML, binary and OpenStep formats are accepted.
func ReadInfo(dir string) (Info, error) {
	var info Info
	data, err := os.ReadFile(filepath.Join(dir, "Info.plist"))
	if err != nil {
		return info, fmt.Errorf("read Info.plist: %w", err)
	}
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return info, fmt.Errorf("decode Info.plist: %w", err)
	}
	if info.BundleID == "" {
		return info, fmt.Errorf("decode Info.plist: CFBundleIdentifier missing")
	}
	return info, nil
}

// Dir is an application directory: Info.plist next to the JS bundle
type Dir struct {
	Path      string
	Evaluator *evaluator.Evaluator
	Logger    *zap.Logger
}

// LoadDir reads and evaluates the application in dir
func LoadDir(dir string, ev *evaluator.Evaluator) (*domain.BaselineApp, error) {
	return (&Dir{Path: dir, Evaluator: ev}).Load(context.Background())
}

// Load reads Info.plist, evaluates the bundle it names and collects the
// application component plus its native screens. Screens come from an
// exported `screens` object; named function exports fill in ids it lacks.
func (d *Dir) Load(ctx context.Context) (*domain.BaselineApp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ev := d.Evaluator
	if ev == nil {
		ev = evaluator.New(evaluator.Options{Logger: log})
	}

	info, err := ReadInfo(d.Path)
	if err != nil {
		return nil, err
	}
	name := info.Bundle
	if name == "" {
		name = DefaultBundle
	}
	src, err := os.ReadFile(filepath.Join(d.Path, name))
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}

	mod, err := ev.EvaluateModule(info.BundleID, string(src))
	if err != nil {
		return nil, err
	}
	if mod.Default == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoApp)
	}

	screens := make(map[string]domain.Component, len(mod.Screens)+len(mod.Named))
	for id, c := range mod.Named {
		screens[id] = c
	}
	for id, c := range mod.Screens {
		screens[id] = c
	}

	log.Info("baseline loaded",
		zap.String("bundle_id", info.BundleID),
		zap.String("version", info.Version),
		zap.String("bundle", name),
		zap.Int("screens", len(screens)))

	if info.InitialRoute != "" {
		if _, ok := screens[info.InitialRoute]; !ok {
			log.Warn("initial route names no baseline screen", zap.String("route", info.InitialRoute))
			info.InitialRoute = ""
		}
	}

	return &domain.BaselineApp{
		BundleID:     info.BundleID,
		Name:         info.Name(),
		Version:      info.Version,
		Dir:          d.Path,
		App:          mod.Default,
		Screens:      screens,
		InitialRoute: info.InitialRoute,
	}, nil
}
