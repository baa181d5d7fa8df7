// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command starlane starts a Machine from a MachineTemplate file, bringing
// every configured star to Ready and serving any gates the template's stars
// declare a listen address for.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/luxfi/log"

	"github.com/starlane-io/starlane/config"
	"github.com/starlane-io/starlane/machine"
)

func main() {
	templatePath := flag.String("template", "machine.json", "path to a MachineTemplate JSON file")
	watch := flag.Bool("watch", false, "log template file changes (adjacent changes need a restart)")
	flag.Parse()

	logger := log.NewLogger("starlane")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *templatePath, *watch, logger); err != nil {
		fmt.Fprintf(os.Stderr, "starlane: %v\n", err)
		os.Exit(1)
	}
}

// run loads templatePath, brings a Machine up, and blocks until ctx is
// canceled, at which point it terminates the machine and waits for that to
// finish. Split out from main so tests can drive it with a context they
// control instead of real OS signals.
func run(ctx context.Context, templatePath string, watch bool, logger log.Logger) error {
	tmpl, err := config.Load(templatePath)
	if err != nil {
		return fmt.Errorf("loading template: %w", err)
	}

	m := machine.New(tmpl, logger)

	if err := m.Init(ctx); err != nil {
		return fmt.Errorf("bringing machine up: %w", err)
	}
	logger.Info("machine ready")

	if watch {
		w, err := config.NewWatcher(templatePath, logger)
		if err != nil {
			return fmt.Errorf("starting template watcher: %w", err)
		}
		defer w.Close()
		go w.Run(ctx, func(reloaded *config.MachineTemplate) {
			logger.Info("template changed; adjacents require a restart to take effect")
			_ = reloaded
		})
	}

	<-ctx.Done()
	m.Terminate("signal received")
	return m.AwaitTermination(context.Background())
}
