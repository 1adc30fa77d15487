package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/pflag"

	"hwkern/app"
	"hwkern/hal"
	"hwkern/internal/buildinfo"
	"hwkern/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var headless hal.HeadlessConfig
	var configPath, tracePath string
	var cpus int
	var demo, version bool

	flagSet := pflag.NewFlagSet("hwkern", pflag.ContinueOnError)
	flagSet.BoolVar(&headless.Enabled, "headless", false, "run without a window")
	flagSet.IntVar(&headless.Hz, "hz", 60, "frame rate in headless mode")
	flagSet.Uint64Var(&headless.Ticks, "ticks", 0, "stop after N frames in headless mode (0 = run forever)")
	flagSet.BoolVar(&headless.Input, "stdin", true, "type standard input on the keyboard in headless mode")
	flagSet.StringVar(&configPath, "config", "", "YAML config file (default $"+config.EnvVar+")")
	flagSet.IntVar(&cpus, "cpus", 0, "number of kernel CPUs (overrides config)")
	flagSet.StringVar(&tracePath, "trace", "", "write the kernel event trace to this file")
	flagSet.BoolVar(&demo, "demo", false, "start the demo userland")
	flagSet.BoolVar(&version, "version", false, "print the version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if version {
		fmt.Println("hwkern", buildinfo.String())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("cpus") {
		cfg.CPUs = cpus
	}
	if flagSet.Changed("trace") {
		cfg.Trace.Path = tracePath
	}
	if flagSet.Changed("demo") {
		cfg.Demo = demo
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	var sys *app.System
	newApp := func(opts app.Options) func(hal.Board) (func() error, error) {
		return func(b hal.Board) (func() error, error) {
			s, err := app.New(b, cfg, opts)
			if err != nil {
				return nil, err
			}
			sys = s
			return s.Step, nil
		}
	}

	if headless.Enabled {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		err = hal.RunHeadless(ctx, app.BoardConfig(cfg), newApp(app.Options{}), headless)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
	} else {
		err = hal.RunWindow(app.BoardConfig(cfg), newApp(app.Options{HoldOnPanic: true}))
	}
	if sys != nil {
		err = errors.Join(err, sys.Close())
	}
	return err
}
