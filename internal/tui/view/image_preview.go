package view

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

const logoPreviewRows = 8

// RenderLogoPreview downloads a channel logo and renders it as text cells
// through chafa.
func RenderLogoPreview(ctx context.Context, logoURL string, width int) (string, error) {
	if width < 16 || width > 40 {
		width = 24
	}

	chafaPath, err := exec.LookPath("chafa")
	if err != nil {
		return "", fmt.Errorf("chafa is not installed")
	}

	data, err := downloadLogo(ctx, logoURL)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, chafaPath, chafaArgs(width)...)
	cmd.Stdin = bytes.NewReader(data)
	output, err := cmd.CombinedOutput()
	trimmed := strings.TrimSpace(string(output))
	if err != nil {
		return "", fmt.Errorf("render logo via chafa: %w: %s", err, trimmed)
	}
	if trimmed == "" {
		return "", fmt.Errorf("empty output")
	}
	return trimmed, nil
}

func chafaArgs(width int) []string {
	return []string{
		"--size", fmt.Sprintf("%dx%d", width, logoPreviewRows),
		"--view-size", fmt.Sprintf("%dx%d", width, logoPreviewRows),
		"--align", "top,left",
		"--format", "symbols",
		"-",
	}
}

func downloadLogo(ctx context.Context, logoURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("logo request: %w", err)
	}
	client := &http.Client{Timeout: 8 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download logo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download logo: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 2*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read logo: %w", err)
	}
	return data, nil
}
