package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

// downloadFilesCmd prefetches model assets into the local cache so the
// worker container starts without a cold download. Currently that is the
// Silero VAD model.
func downloadFilesCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "download-files",
		Short: "Prefetch model assets into the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if err := os.MkdirAll(cfg.Assets.CacheDir, 0o755); err != nil {
				return fmt.Errorf("creating cache dir %s: %w", cfg.Assets.CacheDir, err)
			}

			dest := filepath.Join(cfg.Assets.CacheDir, path.Base(cfg.Assets.VADModelURL))
			if !force {
				if _, err := os.Stat(dest); err == nil {
					fmt.Printf("%s already cached, skipping (use --force to re-download)\n", dest)
					return nil
				}
			}

			if err := downloadFile(cmd.Context(), cfg.Assets.VADModelURL, dest); err != nil {
				return err
			}
			fmt.Printf("Downloaded %s\n", dest)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "re-download even when the file is already cached")
	return cmd
}

func downloadFile(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: unexpected status %d", url, resp.StatusCode)
	}

	// Write to a temp file first so a partial download never shadows a
	// good cached copy.
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), dest)
}
