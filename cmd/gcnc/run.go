package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/mastercactapus/gsend/dispatch"
	"github.com/mastercactapus/gsend/plan"
)

// exit codes of a one-shot run
const (
	exitCompleted = 0
	exitFailed    = 1
	exitCancelled = 130
)

// runOnce streams cfg.Run and reports progress to out until the run ends.
// Cancelling ctx requests a cancel.
func runOnce(ctx context.Context, out io.Writer, w *dispatch.Worker, c controller, cfg *Config) int {
	opt := plan.Options{Granularity: cfg.Granularity}
	if cfg.Level != "" {
		m, err := loadMesh(cfg.Level)
		if err != nil {
			log.Println("ERROR: load level:", err)
			return exitFailed
		}
		opt.Mesh = m
	}

	batch, err := plan.ParseFile(cfg.Run, c.Context(), opt)
	if err != nil {
		log.Println("ERROR: plan:", err)
		return exitFailed
	}

	updates, unsubscribe := w.Subscribe()
	defer unsubscribe()

	err = w.Arm(batch)
	if err != nil {
		log.Println("ERROR: arm:", err)
		return exitFailed
	}
	err = w.Start(ctx)
	if err != nil {
		log.Println("ERROR: start:", err)
		return exitFailed
	}

	for u := range updates {
		if u.Outcome == nil {
			fmt.Fprintf(out, "%s %d/%d %s\n", u.Elapsed, u.Completed, u.Total, u.Response)
			continue
		}

		fmt.Fprintf(out, "%s %s\n", u.Elapsed, u.Outcome)
		switch u.Outcome.State {
		case dispatch.StateCompleted:
			return exitCompleted
		case dispatch.StateCancelled:
			return exitCancelled
		default:
			log.Println("WARN: controller state is unknown; reset the machine before continuing")
			return exitFailed
		}
	}
	return exitFailed
}
