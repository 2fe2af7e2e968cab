// Package browser opens URLs with the desktop's default handler.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNotImplemented is returned on platforms without a known URL opener.
var ErrNotImplemented = errors.New("browser: not implemented")

// OpenURL hands url to the platform opener: open on macOS, xdg-open on other
// Unix systems, rundll32 on Windows. Settings panes such as
// "x-apple.systempreferences:..." are URLs too.
func OpenURL(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return errors.New("browser: url is required")
	}
	name, args, err := opener(runtime.GOOS)
	if err != nil {
		return err
	}
	out, err := exec.CommandContext(ctx, name, append(args, url)...).CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg == "" {
			return fmt.Errorf("browser: %s failed: %w", name, err)
		}
		return fmt.Errorf("browser: %s failed: %w: %s", name, err, msg)
	}
	return nil
}

func opener(goos string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "/usr/bin/open", nil, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", nil, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler"}, nil
	default:
		return "", nil, ErrNotImplemented
	}
}
