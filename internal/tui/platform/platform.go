package platform

import (
	"bytes"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
)

var streamSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"rtsp":  true,
	"rtmp":  true,
	"rtp":   true,
	"udp":   true,
	"mms":   true,
}

func ValidateStreamURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("channel has no stream URL")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid URL format")
	}
	if !streamSchemes[strings.ToLower(parsed.Scheme)] {
		return "", fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid URL host")
	}
	return trimmed, nil
}

// playerCommand splits the configured player into a binary and its
// arguments and appends the stream URL.
func playerCommand(player, streamURL string) (string, []string, error) {
	fields := strings.Fields(player)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("no player configured")
	}
	args := append(append([]string{}, fields[1:]...), streamURL)
	return fields[0], args, nil
}

// LaunchPlayer starts the player detached from the terminal UI and returns
// once the process is running.
func LaunchPlayer(player, streamURL string) error {
	valid, err := ValidateStreamURL(streamURL)
	if err != nil {
		return err
	}
	name, args, err := playerCommand(player, valid)
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("player %q not found: %w", name, err)
	}
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func selectClipboardCommand(lookPath func(string) (string, error)) ([]string, error) {
	commands := [][]string{
		{"pbcopy"},
		{"xclip", "-selection", "clipboard"},
		{"wl-copy"},
	}
	for _, c := range commands {
		if _, err := lookPath(c[0]); err == nil {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no clipboard command available")
}

func CopyToClipboard(text string) error {
	c, err := selectClipboardCommand(exec.LookPath)
	if err != nil {
		return err
	}
	cmd := exec.Command(c[0], c[1:]...)
	cmd.Stdin = bytes.NewBufferString(text)
	return cmd.Run()
}
