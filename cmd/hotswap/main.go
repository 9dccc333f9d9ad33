package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/vburojevic/hotswap/internal/cli"
	"github.com/vburojevic/hotswap/internal/config"
)

const quickStart = `hotswap - live preview of editing sessions

Quick start:
  hotswap session switch SESSION_ID      Make a session active
  hotswap load                           Load it and list its screens
  hotswap watch --on-reload "make test"  Apply live changes and run hooks
  hotswap ui                             Interactive preview

For help:
  hotswap --help                         All commands and flags
  hotswap schema --list                  NDJSON record types
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Config defaults; CLI flags win when given
	vars := kong.Vars{
		"config_format": cfg.Format,
	}

	ctx := kong.Parse(&c,
		kong.Name("hotswap"),
		kong.Description("hotswap: load editing sessions and apply live changes to their screens"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	_ = globals.Logger().Sync()
	if err != nil {
		os.Exit(1)
	}
}
