package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/pagecap/internal/jobcfg"
	"github.com/jackzampolin/pagecap/internal/jobs"
	"github.com/jackzampolin/pagecap/internal/server"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Capture pages in the terminal without starting the server",
	Long: `Open the browser session, run one capture and exit.

Flags override the capture: section of the config for this run only.
Press Ctrl+C once to stop after the current page; the pages captured so
far are still saved. Press it again to quit immediately.

Examples:
  pagecap run --pages 300                 # Capture 300 pages
  pagecap run --pages 900 --split 300     # Three documents of 300 pages
  pagecap run --format png --max-edge 3000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := jobcfg.RequestFromFlags(cmd.Flags())
		if err != nil {
			return err
		}
		h, mgr, logger, err := setup()
		if err != nil {
			return err
		}

		// The runtime outlives the first Ctrl+C so the run can deliver.
		ctx := cmd.Context()
		runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		defer cancel()

		rt, err := server.StartRuntime(runCtx, server.RuntimeConfig{
			ConfigManager: mgr,
			Home:          h,
			Logger:        logger,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		updates, unsubscribe := rt.Broadcaster.Subscribe(64)
		defer unsubscribe()

		settings := rt.Builder.Settings(runCtx, req)
		if _, err := rt.Controller.Start(runCtx, settings); err != nil {
			return err
		}

		type result struct {
			session jobs.Session
			err     error
		}
		done := make(chan result, 1)
		go func() {
			s, err := rt.Controller.Wait(runCtx)
			done <- result{s, err}
		}()

		interrupt := ctx.Done()
		for {
			select {
			case u := <-updates:
				if u.Kind == "status" {
					fmt.Fprintln(os.Stderr, u.Status)
				}
			case <-interrupt:
				interrupt = nil
				if err := requestStop(runCtx, rt.Controller, releaseSignals); err != nil {
					return err
				}
			case r := <-done:
				if r.err != nil {
					return r.err
				}
				return report(r.session)
			}
		}
	},
}

// releaseSignals restores default signal handling. main points it at the
// NotifyContext stop func.
var releaseSignals = func() {}

type stopper interface {
	Stop(ctx context.Context) (string, error)
}

// requestStop asks the run to stop after the current page. It releases the
// signal handler first, so a second Ctrl+C terminates the process even when
// the run is stuck in a long assembler call.
func requestStop(ctx context.Context, s stopper, release func()) error {
	release()
	fmt.Fprintln(os.Stderr, "Stopping after the current page (Ctrl+C again to quit)...")
	if _, err := s.Stop(ctx); err != nil && !errors.Is(err, jobs.ErrNotRunning) {
		return err
	}
	return nil
}

// report prints where the documents went and returns the run's error.
func report(s jobs.Session) error {
	fmt.Printf("Captured %d of %d pages\n", s.CapturedPages, s.TotalPages)
	for _, path := range s.Delivered {
		fmt.Printf("  %s\n", path)
	}
	if s.LastError != "" {
		return errors.New(s.LastError)
	}
	return nil
}

func init() {
	jobcfg.AddFlags(runCmd.Flags())
	rootCmd.AddCommand(runCmd)
}
