package platform

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestValidateStreamURL(t *testing.T) {
	for _, raw := range []string{"https://cdn.example.com/live/1.m3u8", " rtmp://live.example.com/app/key ", "udp://239.0.0.1:1234"} {
		got, err := ValidateStreamURL(raw)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if got != strings.TrimSpace(raw) {
			t.Fatalf("unexpected normalized URL: %q", got)
		}
	}

	_, err := ValidateStreamURL("ftp://example.com/path")
	if err == nil || !strings.Contains(err.Error(), "unsupported URL scheme") {
		t.Fatalf("expected unsupported scheme error, got %v", err)
	}

	_, err = ValidateStreamURL("https://")
	if err == nil || !strings.Contains(err.Error(), "invalid URL host") {
		t.Fatalf("expected invalid host error, got %v", err)
	}

	if _, err := ValidateStreamURL("  "); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestPlayerCommand(t *testing.T) {
	cases := []struct {
		player string
		name   string
		args   []string
	}{
		{player: "mpv", name: "mpv", args: []string{"http://s/1"}},
		{player: "vlc --play-and-exit", name: "vlc", args: []string{"--play-and-exit", "http://s/1"}},
		{player: "  mpv   --fs  ", name: "mpv", args: []string{"--fs", "http://s/1"}},
	}
	for _, tc := range cases {
		name, args, err := playerCommand(tc.player, "http://s/1")
		if err != nil {
			t.Fatalf("playerCommand(%q) returned error: %v", tc.player, err)
		}
		if name != tc.name || !reflect.DeepEqual(args, tc.args) {
			t.Fatalf("playerCommand(%q) = (%q, %v), want (%q, %v)", tc.player, name, args, tc.name, tc.args)
		}
	}
	if _, _, err := playerCommand(" ", "http://s/1"); err == nil {
		t.Fatal("expected error without a player")
	}
}

func TestLaunchPlayer_RejectsBadInput(t *testing.T) {
	if err := LaunchPlayer("mpv", "file:///etc/passwd"); err == nil {
		t.Fatal("expected scheme error")
	}
	if err := LaunchPlayer("definitely-not-a-player-binary", "http://s/1"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing player error, got %v", err)
	}
}

func TestSelectClipboardCommand(t *testing.T) {
	lookup := func(bin string) (string, error) {
		if bin == "xclip" {
			return "/usr/bin/xclip", nil
		}
		return "", errors.New("not found")
	}
	got, err := selectClipboardCommand(lookup)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"xclip", "-selection", "clipboard"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected selected command: got=%v want=%v", got, want)
	}

	none := func(string) (string, error) { return "", errors.New("not found") }
	if _, err := selectClipboardCommand(none); err == nil {
		t.Fatal("expected error when no clipboard command is available")
	}
}
