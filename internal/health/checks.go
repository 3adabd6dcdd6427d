package health

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/quaverbot/quaver/internal/settings"
)

// GatewayChecker reports ready once the Discord websocket is up.
func GatewayChecker(connected func() bool) Checker {
	return Checker{
		Name: "gateway",
		Check: func(context.Context) error {
			if !connected() {
				return errors.New("discord gateway not connected")
			}
			return nil
		},
	}
}

// CacheDirChecker verifies the audio cache directory is still a writable
// location. Losing the volume underneath a running bot shows up here.
func CacheDirChecker(dir string) Checker {
	return Checker{
		Name: "cache",
		Check: func(context.Context) error {
			info, err := os.Stat(dir)
			if err != nil {
				return fmt.Errorf("cache dir: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("cache path %q is not a directory", dir)
			}
			f, err := os.CreateTemp(dir, ".healthz-*")
			if err != nil {
				return fmt.Errorf("cache dir not writable: %w", err)
			}
			name := f.Name()
			f.Close()
			os.Remove(name)
			return nil
		},
	}
}

// SettingsChecker verifies the settings store answers reads.
func SettingsChecker(store settings.Store) Checker {
	return Checker{
		Name: "settings",
		Check: func(ctx context.Context) error {
			if _, err := store.Get(ctx, "healthcheck"); err != nil {
				return fmt.Errorf("settings store: %w", err)
			}
			return nil
		},
	}
}
