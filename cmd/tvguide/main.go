package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"pkt.systems/pslog"

	"github.com/glabrego/tvguide-cli/internal/app"
	"github.com/glabrego/tvguide-cli/internal/applog"
	"github.com/glabrego/tvguide-cli/internal/config"
	"github.com/glabrego/tvguide-cli/internal/guide"
	"github.com/glabrego/tvguide-cli/internal/storage"
	"github.com/glabrego/tvguide-cli/internal/tui"
	"github.com/glabrego/tvguide-cli/internal/tui/state"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := submain(ctx)
	stop()
	os.Exit(code)
}

func submain(ctx context.Context) int {
	root := newRootCmd()
	root.SetArgs(os.Args[1:])
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tvguide: %v\n", err)
		return 1
	}
	return 0
}

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "tvguide",
		Short:         "Terminal TV guide for an IPTV backend",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default "+config.DefaultConfigPath()+")")

	guideCmd := newGuideCmd(flags)
	root.RunE = guideCmd.RunE
	root.Flags().AddFlagSet(guideCmd.Flags())

	root.AddCommand(guideCmd)
	root.AddCommand(newRefreshCmd(flags))
	root.AddCommand(newChannelsCmd(flags))
	root.AddCommand(newSyncCmd(flags))
	root.AddCommand(newSettingsCmd(flags))
	root.AddCommand(newConfigCmd(flags))
	return root
}

// runtime is the wiring shared by every command that talks to the backend.
type runtime struct {
	cfg     config.Config
	log     pslog.Logger
	logSink io.Closer
	repo    *storage.Repository
	client  *tvapi.Client
	service *app.Service
}

func openRuntime(ctx context.Context, flags *rootFlags) (*runtime, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, sink, err := applog.Open(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	repo, err := storage.NewRepository(cfg.DBPath)
	if err != nil {
		_ = sink.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}
	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := repo.Init(initCtx); err != nil {
		_ = repo.Close()
		_ = sink.Close()
		return nil, fmt.Errorf("storage schema: %w", err)
	}

	client := tvapi.NewClient(cfg.APIBaseURL, nil, tvapi.WithLogger(logger))
	service := app.NewService(client, repo, cfg.List.PageLimit, logger)
	logger.Info("tvguide started", "api", cfg.APIBaseURL, "db", cfg.DBPath)
	return &runtime{
		cfg:     cfg,
		log:     logger,
		logSink: sink,
		repo:    repo,
		client:  client,
		service: service,
	}, nil
}

func (rt *runtime) Close() {
	if err := rt.repo.Close(); err != nil {
		rt.log.Warn("close storage failed", "err", err)
	}
	_ = rt.logSink.Close()
}

func (rt *runtime) refreshRunner() *app.RefreshRunner {
	return app.NewRefreshRunner(rt.client, rt.repo.KV("refresh"), rt.log)
}

func newGuideCmd(flags *rootFlags) *cobra.Command {
	var player string
	cmd := &cobra.Command{
		Use:   "guide",
		Short: "Open the interactive guide (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()
			if player != "" {
				rt.cfg.Player = player
			}
			return runGuide(cmd.Context(), rt)
		},
	}
	cmd.Flags().StringVar(&player, "player", "", "player command used to open streams")
	return cmd
}

func runGuide(ctx context.Context, rt *runtime) error {
	settingsCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	remote, err := rt.service.Settings(settingsCtx)
	cancel()
	if err != nil {
		rt.log.Warn("using local guide settings", "err", err)
	} else {
		rt.cfg = applyRemoteSettings(rt.cfg, remote)
	}

	loc, err := rt.cfg.Location()
	if err != nil {
		return err
	}
	store := state.NewStore(rt.repo.KV("ui"), rt.log)
	ctrl, err := guide.New(rt.service, store, guide.Options{
		Location:     loc,
		StartHour:    rt.cfg.Guide.StartHour,
		EndHour:      rt.cfg.Guide.EndHour,
		Strict:       rt.cfg.Guide.Strict,
		Timezone:     rt.cfg.Guide.Timezone,
		CellsPerHour: rt.cfg.Guide.CellsPerHour,
		Prefetch:     rt.cfg.List.PrefetchConcurrency,
		Log:          rt.log,
	})
	if err != nil {
		return fmt.Errorf("guide window: %w", err)
	}

	model := tui.NewModel(ctrl, rt.service, rt.refreshRunner(), tui.Options{
		Player:  rt.cfg.Player,
		Refresh: rt.cfg.Refresh,
		Log:     rt.log,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
