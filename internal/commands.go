package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"golang.org/x/sync/errgroup"

	"github.com/starford/denote-reconcile/internal/apperr"
	"github.com/starford/denote-reconcile/internal/mcpserver"
	"github.com/starford/denote-reconcile/internal/passservice"
	"github.com/starford/denote-reconcile/internal/reconcile"
)

// Reconcile runs one pass and prints its report. The report is returned
// even when the pass failed.
func Reconcile(ctx context.Context, opts ...Option) (*reconcile.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := app.setup()
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	res, runErr := rt.svc.Reconcile(ctx, app.dryRun)
	if res.Report != nil {
		if err := app.printReport(res); err != nil {
			return res.Report, err
		}
	}
	return res.Report, runErr
}

func (a *application) printReport(res passservice.Result) error {
	if a.jsonOut {
		return res.Report.WriteJSON(a.output)
	}
	if res.PassID != 0 {
		fmt.Fprintf(a.output, "pass %d\n", res.PassID)
	}
	return res.Report.WriteText(a.output)
}

// Watch runs an initial pass, then re-runs passes whenever notes change until
// ctx is cancelled or a shutdown signal arrives.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.svc.OnPass(func(res passservice.Result) {
		if res.Report == nil {
			return
		}
		if err := app.printReport(res); err != nil {
			rt.logger.Warn("print report failed", slog.String("error", err.Error()))
		}
	})

	if _, err := rt.svc.Reconcile(ctx, app.dryRun); err != nil {
		return fmt.Errorf("initial pass: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return rt.watchCorpus(gCtx, app.dryRun, nil)
	})
	g.Go(func() error {
		waitForShutdown(gCtx, rt.logger)
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		return err
	}
	return nil
}

// ServeMCP serves the MCP tools over stdio. Logs must not go to stdout,
// which carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	srv := mcpserver.New(rt.svc, rt.store, app.version)
	rt.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// History prints the most recent journal entries.
func History(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	passes, total, err := rt.svc.ListPasses(ctx, app.limit, 0)
	if err != nil {
		if errors.Is(err, apperr.ErrDisabled) {
			return fmt.Errorf("history: %w (set journal.path)", err)
		}
		return err
	}

	if app.jsonOut {
		return writeJSON(app.output, map[string]any{"passes": passes, "total": total})
	}

	tw := tabwriter.NewWriter(app.output, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFINISHED\tMODE\tCHANGES\tUNRESOLVED\tAMBIGUOUS\tERROR")
	for _, p := range passes {
		mode := "apply"
		if p.DryRun {
			mode = "dry-run"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%s\n",
			p.ID, p.FinishedAt.Local().Format("2006-01-02 15:04:05"), mode,
			p.Changes, p.Counts.Unresolved, p.Counts.Ambiguous, p.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(app.output, "%d of %d passes\n", len(passes), total)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
