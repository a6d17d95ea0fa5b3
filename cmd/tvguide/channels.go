package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/glabrego/tvguide-cli/internal/tui/view"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

func newChannelsCmd(flags *rootFlags) *cobra.Command {
	var query tvapi.ChannelQuery
	var cached bool
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "List channels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			var channels []tvapi.Channel
			if cached {
				channels, err = rt.service.ListCached(ctx, query)
			} else {
				channels, err = rt.service.Channels(ctx, query)
			}
			if err != nil {
				if len(channels) == 0 {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v (showing cached channels)\n", err)
			}
			printChannels(cmd.OutOrStdout(), channels, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&query.Search, "search", "", "case-insensitive name search")
	cmd.Flags().StringVar(&query.Group, "group", "", "only channels of this group")
	cmd.Flags().BoolVar(&query.FavoritesOnly, "favorites", false, "only favorite channels")
	cmd.Flags().BoolVar(&query.RecentOnly, "recent", false, "only recently watched channels")
	cmd.Flags().IntVar(&query.Limit, "limit", 0, "page size (default from config)")
	cmd.Flags().IntVar(&query.Skip, "skip", 0, "channels to skip")
	cmd.Flags().BoolVar(&cached, "cached", false, "read the local cache only")

	cmd.AddCommand(newUnwatchCmd(flags))
	return cmd
}

func printChannels(out io.Writer, channels []tvapi.Channel, now time.Time) {
	if len(channels) == 0 {
		fmt.Fprintln(out, "no channels")
		return
	}
	rows := make([][]string, 0, len(channels))
	for _, ch := range channels {
		flags := make([]string, 0, 2)
		if ch.IsFavorite {
			flags = append(flags, "fav")
		}
		if ch.IsMissing {
			flags = append(flags, "missing")
		}
		rows = append(rows, []string{
			ch.ID,
			ch.Name,
			ch.GroupName(),
			strings.Join(flags, ","),
			view.WatchedLabel(now, ch.LastWatched.Time),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "NAME", "GROUP", "FLAGS", "WATCHED").
		Rows(rows...)
	fmt.Fprintln(out, t.Render())
	fmt.Fprintln(out, strconv.Itoa(len(channels))+" channels")
}

func newUnwatchCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "unwatch <channel-id>",
		Short: "Remove a channel from the recently watched list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			recent, err := rt.service.Channels(ctx, tvapi.ChannelQuery{RecentOnly: true})
			if err != nil && len(recent) == 0 {
				return err
			}
			for _, ch := range recent {
				if ch.ID != args[0] {
					continue
				}
				if _, err := rt.service.ClearWatched(ctx, ch); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s from recent channels\n", ch.Name)
				return nil
			}
			return fmt.Errorf("channel %s is not in the recent list: %w", args[0], tvapi.ErrNotFound)
		},
	}
}

func newSyncCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Download the whole lineup into the local cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			start := time.Now()
			channels, err := rt.service.SyncLineup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cached %d channels in %s\n", len(channels), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
