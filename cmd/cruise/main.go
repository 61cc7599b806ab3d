// Package main is the entry point of the SignCruise speed controller.
// It loads the configuration, applies command-line overrides, builds the
// system (vehicle link, camera, loop, preview, telemetry) and runs it until
// interrupted or asked to quit.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"SignCruise/internal/core"
	"SignCruise/internal/model"
	"SignCruise/internal/util"
)

func main() {
	cfgPath := flag.String("c", "", "path to configuration file (defaults when empty)")
	strategy := flag.String("strategy", "", "override controller.strategy (direct|delegated)")
	preview := flag.String("preview", "", "override preview.addr, e.g. :8080")
	logLevel := flag.String("log-level", "", "override global.log_level")
	flag.Parse()

	cfg := model.DefaultConfig()
	if *cfgPath != "" {
		var err error
		cfg, err = model.LoadConfig(*cfgPath)
		if err != nil {
			util.SetupLogger("info", "text")
			util.Fatal("[Main] failed to load config: %v", err)
		}
	}
	if *strategy != "" {
		cfg.Controller.Strategy = *strategy
	}
	if *preview != "" {
		cfg.Preview.Addr = *preview
	}
	if *logLevel != "" {
		cfg.Global.LogLevel = *logLevel
	}
	util.SetupLogger(cfg.Global.LogLevel, cfg.Global.LogFormat)
	if err := cfg.Validate(); err != nil {
		util.Fatal("[Main] %v", err)
	}
	util.Info("[Main] run %s using config %q, strategy %s", cfg.Global.RunID, *cfgPath, cfg.Controller.Strategy)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sys, err := core.NewSystem(ctx, cfg)
	if err != nil {
		util.Fatal("[Main] failed to create system: %v", err)
	}

	runErr := sys.Run(ctx)
	util.Info("[Main] Shutting down system...")
	if err := sys.Close(); err != nil {
		util.Error("[Main] teardown: %v", err)
	}
	if runErr != nil {
		util.Fatal("[Main] %v", runErr)
	}
	util.Info("[Main] System stopped cleanly.")
}
