package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/glabrego/tvguide-cli/internal/app"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

// programRetention is how far back cached programs are kept after a guide
// refresh.
const programRetention = 48 * time.Hour

func newRefreshCmd(flags *rootFlags) *cobra.Command {
	var force bool
	var url string
	cmd := &cobra.Command{
		Use:       "refresh m3u|epg|reset",
		Short:     "Refresh the playlist or the guide, or wipe and reload everything",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{string(app.RefreshPlaylist), string(app.RefreshGuide), string(app.RefreshReset)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := app.RefreshKind(args[0])
			if !kind.Valid() {
				return fmt.Errorf("unknown refresh kind %q", args[0])
			}
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			req := refreshRequest(rt, kind, force)
			if url != "" {
				req.URL = url
			}
			return runRefresh(cmd.Context(), rt, kind, req, cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "refresh even if the interval has not passed")
	cmd.Flags().StringVar(&url, "url", "", "source URL overriding the configured one")
	return cmd
}

func refreshRequest(rt *runtime, kind app.RefreshKind, force bool) tvapi.RefreshRequest {
	req := tvapi.RefreshRequest{Force: force}
	switch kind {
	case app.RefreshPlaylist:
		req.URL = rt.cfg.Refresh.M3UURL
		req.IntervalHours = rt.cfg.Refresh.M3UIntervalHours
	case app.RefreshGuide:
		req.URL = rt.cfg.Refresh.EPGURL
		req.IntervalHours = rt.cfg.Refresh.EPGIntervalHours
	}
	return req
}

func runRefresh(ctx context.Context, rt *runtime, kind app.RefreshKind, req tvapi.RefreshRequest, out io.Writer) error {
	runner := rt.refreshRunner()
	if kind != app.RefreshReset && !app.NeedsRefresh(runner.LastCompleted(kind), req.IntervalHours, req.Force, time.Now()) {
		fmt.Fprintf(out, "%s is up to date (last refresh %s); use --force to refresh anyway\n",
			kind.Title(), runner.LastCompleted(kind).Local().Format(time.DateTime))
		return nil
	}

	updates := make(chan app.Run, 32)
	run, _, err := runner.Start(context.WithoutCancel(ctx), kind, req, func(r app.Run) {
		select {
		case updates <- r:
		default:
		}
	})
	if err != nil {
		return err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		lastMessage := ""
		for r := range updates {
			if r.Message == lastMessage && !r.Status.IsFinished() {
				continue
			}
			lastMessage = r.Message
			fmt.Fprintf(out, "%-8s %3.0f%%  %s\n", kind.Title(), r.Fraction()*100, r.Message)
		}
	}()

	final, err := runner.Wait(ctx, run.ID)
	if errors.Is(err, context.Canceled) {
		runner.Cancel(run.ID)
		final, err = runner.Wait(context.Background(), run.ID)
	}
	close(updates)
	<-done
	if err != nil {
		return err
	}

	switch final.Status {
	case app.RunFailed:
		return fmt.Errorf("%s refresh failed: %w", kind, final.Err)
	case app.RunCancelled:
		fmt.Fprintf(out, "%s refresh cancelled\n", kind.Title())
		return nil
	}
	if final.Dropped > 0 {
		fmt.Fprintf(out, "skipped %d malformed progress lines\n", final.Dropped)
	}
	fmt.Fprintf(out, "%s refresh finished in %s\n", kind.Title(), final.FinishedAt.Sub(final.StartedAt).Round(time.Millisecond))

	if kind == app.RefreshGuide || kind == app.RefreshReset {
		pruned, err := rt.repo.PrunePrograms(ctx, time.Now().Add(-programRetention))
		if err != nil {
			rt.log.Warn("prune cached programs failed", "err", err)
		} else if pruned > 0 {
			rt.log.Info("pruned cached programs", "rows", pruned)
		}
	}
	return nil
}
