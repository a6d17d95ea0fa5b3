package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/glabrego/tvguide-cli/internal/app"
	"github.com/glabrego/tvguide-cli/internal/config"
	"github.com/glabrego/tvguide-cli/internal/tvapi"
)

func newTestRuntime(t *testing.T, register func(r *mux.Router)) *runtime {
	t.Helper()
	r := mux.NewRouter()
	register(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	doc := "api_base_url: " + ts.URL + "\n" +
		"db_path: " + filepath.Join(dir, "tvguide.db") + "\n" +
		"log:\n  file: " + filepath.Join(dir, "tvguide.log") + "\n" +
		"refresh:\n  m3u_url: http://lists/tv.m3u\n  m3u_interval_hours: 12\n"
	if err := os.WriteFile(cfgPath, []byte(doc), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	rt, err := openRuntime(context.Background(), &rootFlags{configPath: cfgPath})
	if err != nil {
		t.Fatalf("openRuntime: %v", err)
	}
	t.Cleanup(rt.Close)
	return rt
}

func TestRunRefreshStreamsProgressAndRecordsCompletion(t *testing.T) {
	rt := newTestRuntime(t, func(r *mux.Router) {
		r.HandleFunc("/m3u/refresh", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("url") != "http://lists/tv.m3u" || r.URL.Query().Get("interval") != "12" {
				t.Errorf("unexpected query %s", r.URL.RawQuery)
			}
			_, _ = io.WriteString(w, `{"type":"progress","current":1,"total":2,"message":"parsing"}`+"\n")
			_, _ = io.WriteString(w, `{"type":"complete","message":"Found 3 new channels"}`+"\n")
		}).Methods(http.MethodPost)
	})

	var out bytes.Buffer
	req := refreshRequest(rt, app.RefreshPlaylist, false)
	if err := runRefresh(context.Background(), rt, app.RefreshPlaylist, req, &out); err != nil {
		t.Fatalf("runRefresh: %v\n%s", err, out.String())
	}
	for _, want := range []string{"parsing", "Found 3 new channels", "Playlist refresh finished"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("expected %q in output:\n%s", want, out.String())
		}
	}
	if rt.refreshRunner().LastCompleted(app.RefreshPlaylist).IsZero() {
		t.Fatal("expected completion time to be recorded")
	}

	out.Reset()
	if err := runRefresh(context.Background(), rt, app.RefreshPlaylist, req, &out); err != nil {
		t.Fatalf("second runRefresh: %v", err)
	}
	if !strings.Contains(out.String(), "up to date") {
		t.Fatalf("expected interval to skip the second refresh:\n%s", out.String())
	}
}

func TestRunRefreshReportsFailure(t *testing.T) {
	rt := newTestRuntime(t, func(r *mux.Router) {
		r.HandleFunc("/epg/refresh", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadRequest)
		}).Methods(http.MethodPost)
	})

	var out bytes.Buffer
	err := runRefresh(context.Background(), rt, app.RefreshGuide, tvapi.RefreshRequest{Force: true}, &out)
	if err == nil || !strings.Contains(err.Error(), "epg refresh failed") {
		t.Fatalf("expected failure, got %v", err)
	}
}

func TestPrintChannelsShowsFlags(t *testing.T) {
	now := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	var out bytes.Buffer
	printChannels(&out, []tvapi.Channel{
		{ID: "n1", Name: "News One", Group: "News", IsFavorite: true, LastWatched: tvapi.Timestamp{Time: now.Add(-2 * time.Hour)}},
		{ID: "x1", Name: "Gone", IsMissing: true},
	}, now)
	got := out.String()
	for _, want := range []string{"News One", "fav", "2 hours ago", "missing", tvapi.UncategorizedGroup, "never", "2 channels"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in table:\n%s", want, got)
		}
	}

	out.Reset()
	printChannels(&out, nil, now)
	if strings.TrimSpace(out.String()) != "no channels" {
		t.Fatalf("unexpected empty output %q", out.String())
	}
}

func TestMergeSettingsKeepsBackendValuesConfigLeavesEmpty(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Refresh.EPGURL = "http://lists/guide.xml"
	cfg.Guide.Timezone = ""
	current := tvapi.Settings{M3UURL: "http://old/tv.m3u", EPGURL: "http://old/guide.xml", Timezone: "Europe/Madrid", Theme: "dark"}

	got := mergeSettings(current, cfg)
	if got.M3UURL != "http://old/tv.m3u" || got.EPGURL != "http://lists/guide.xml" {
		t.Fatalf("unexpected URLs %+v", got)
	}
	if got.Timezone != "Europe/Madrid" || got.Theme != "dark" {
		t.Fatalf("expected backend-only values to survive, got %+v", got)
	}
	if got.GuideStartHour == nil || *got.GuideStartHour != cfg.Guide.StartHour || *got.GuideEndHour != cfg.Guide.EndHour {
		t.Fatalf("unexpected guide hours %+v", got)
	}
}

func TestApplyRemoteSettingsOverridesGuideHours(t *testing.T) {
	cfg := config.DefaultConfig()
	start, end := 6, 26
	got := applyRemoteSettings(cfg, tvapi.Settings{GuideStartHour: &start, GuideEndHour: &end, Timezone: "Europe/Madrid"})
	if got.Guide.StartHour != 6 || got.Guide.EndHour != 26 || got.Guide.Timezone != "Europe/Madrid" {
		t.Fatalf("unexpected guide config %+v", got.Guide)
	}

	got = applyRemoteSettings(cfg, tvapi.Settings{Timezone: "Not/AZone"})
	if got.Guide != cfg.Guide {
		t.Fatalf("expected local guide config to stay, got %+v", got.Guide)
	}
}

func TestConfigInitWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", path, "config", "init"})
	if err := root.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out.String(), path) {
		t.Fatalf("unexpected output %q", out.String())
	}
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "api_base_url") {
		t.Fatalf("expected default config, got %q err=%v", data, err)
	}

	root = newRootCmd()
	root.SetArgs([]string{"--config", path, "config", "init"})
	if err := root.ExecuteContext(context.Background()); err == nil {
		t.Fatal("expected init to refuse overwriting without --force")
	}
}
