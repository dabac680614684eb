package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/desertthunder/tubesync/internal/shared"
	"github.com/urfave/cli/v3"
)

// AuthLogin runs the interactive YouTube OAuth flow and caches the token.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	store := r.tokenStore()
	if err := store.Invalidate(); err != nil {
		return err
	}

	tok, err := store.Acquire(ctx)
	if err != nil {
		return err
	}

	r.writePlain("Authorized with YouTube.\n")
	if !tok.Expiry.IsZero() {
		r.writePlain("Token expires at %s\n", tok.Expiry.Format(time.RFC1123))
	}
	return nil
}

// AuthStatus reports whether a cached credential exists and if it is stale.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	tok, err := r.tokenStore().Cached()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.writePlain("Not authorized. Run `tubesync auth login`.\n")
			return nil
		}
		return err
	}

	switch {
	case tok.Valid():
		r.writePlain("Authorized. Token expires at %s\n", tok.Expiry.Format(time.RFC1123))
	case tok.RefreshToken != "":
		r.writePlain("Token expired; it will refresh automatically on the next run.\n")
	default:
		r.writePlain("Token expired with no refresh token. Run `tubesync auth login`.\n")
	}
	return nil
}

// AuthReset removes the cached credential.
func (r *Runner) AuthReset(ctx context.Context, cmd *cli.Command) error {
	if err := r.reloadConfig(cmd); err != nil {
		return err
	}

	if err := r.tokenStore().Invalidate(); err != nil {
		return err
	}
	r.writePlain("Removed cached credential.\n")
	return nil
}

// ConfigInit writes the example configuration file.
func (r *Runner) ConfigInit(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.writePlain("Wrote %s\n", path)
	return nil
}
