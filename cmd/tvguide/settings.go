package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/glabrego/tvguide-cli/internal/config"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

func newSettingsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show the backend settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			settings, err := rt.service.Settings(ctx)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(settingsView(settings))
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.AddCommand(newSettingsPushCmd(flags))
	return cmd
}

func newSettingsPushCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Store the refresh and guide settings of the config file on the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			current, err := rt.service.Settings(ctx)
			if err != nil {
				return err
			}
			if err := rt.service.SaveSettings(ctx, mergeSettings(current, rt.cfg)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings saved")
			return nil
		},
	}
}

// mergeSettings overlays the configured values on the backend settings,
// keeping backend values the config leaves empty.
func mergeSettings(current tvapi.Settings, cfg config.Config) tvapi.Settings {
	out := current
	if cfg.Refresh.M3UURL != "" {
		out.M3UURL = cfg.Refresh.M3UURL
	}
	if cfg.Refresh.EPGURL != "" {
		out.EPGURL = cfg.Refresh.EPGURL
	}
	if cfg.Refresh.M3UIntervalHours > 0 {
		out.M3UUpdateInterval = cfg.Refresh.M3UIntervalHours
	}
	if cfg.Refresh.EPGIntervalHours > 0 {
		out.EPGUpdateInterval = cfg.Refresh.EPGIntervalHours
	}
	out.UpdateOnStart = cfg.Refresh.UpdateOnStart
	start, end := cfg.Guide.StartHour, cfg.Guide.EndHour
	out.GuideStartHour = &start
	out.GuideEndHour = &end
	if cfg.Guide.Timezone != "" {
		out.Timezone = cfg.Guide.Timezone
	}
	return out
}

// applyRemoteSettings lets guide hours and timezone stored on the backend
// override the local config.
func applyRemoteSettings(cfg config.Config, remote tvapi.Settings) config.Config {
	if remote.GuideStartHour != nil {
		cfg.Guide.StartHour = *remote.GuideStartHour
	}
	if remote.GuideEndHour != nil {
		cfg.Guide.EndHour = *remote.GuideEndHour
	}
	if remote.Timezone != "" {
		if _, err := time.LoadLocation(remote.Timezone); err == nil {
			cfg.Guide.Timezone = remote.Timezone
		}
	}
	return cfg
}

type settingsDoc struct {
	M3UURL            string `yaml:"m3u_url"`
	M3UUpdateInterval int    `yaml:"m3u_interval_hours"`
	EPGURL            string `yaml:"epg_url"`
	EPGUpdateInterval int    `yaml:"epg_interval_hours"`
	UpdateOnStart     bool   `yaml:"update_on_start"`
	Theme             string `yaml:"theme,omitempty"`
	GuideStartHour    *int   `yaml:"guide_start_hour,omitempty"`
	GuideEndHour      *int   `yaml:"guide_end_hour,omitempty"`
	Timezone          string `yaml:"timezone,omitempty"`
}

func settingsView(s tvapi.Settings) settingsDoc {
	return settingsDoc{
		M3UURL:            s.M3UURL,
		M3UUpdateInterval: s.M3UUpdateInterval,
		EPGURL:            s.EPGURL,
		EPGUpdateInterval: s.EPGUpdateInterval,
		UpdateOnStart:     s.UpdateOnStart,
		Theme:             s.Theme,
		GuideStartHour:    s.GuideStartHour,
		GuideEndHour:      s.GuideEndHour,
		Timezone:          s.Timezone,
	}
}
