package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func TestOpenURLRequiresURL(t *testing.T) {
	err := OpenURL(context.Background(), "  ")
	be.Equal(t, err.Error(), "browser: url is required")
}

func TestOpener(t *testing.T) {
	name, args, err := opener("darwin")
	be.Err(t, err, nil)
	be.Equal(t, name, "/usr/bin/open")
	be.Equal(t, len(args), 0)

	name, args, err = opener("windows")
	be.Err(t, err, nil)
	be.Equal(t, name, "rundll32")
	be.Equal(t, len(args), 1)

	_, _, err = opener("plan9")
	be.True(t, errors.Is(err, ErrNotImplemented))
}
