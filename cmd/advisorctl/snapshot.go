package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/garyellow/itmo-advisor-go/internal/config"
	"github.com/garyellow/itmo-advisor-go/internal/r2client"
	"github.com/garyellow/itmo-advisor-go/internal/snapshot"
)

func newSnapshotCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Transfer the corpus bundle to and from R2",
		Long: `Upload or download the zstd tar bundle of DATA_DIR/programs stored at
ITMO_R2_SNAPSHOT_KEY. Requires ITMO_R2_ENABLED=true.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if root := cmd.Root(); root.PersistentPreRunE != nil {
				if err := root.PersistentPreRunE(cmd, args); err != nil {
					return err
				}
			}
			if !e.cfg.R2Enabled {
				return fmt.Errorf("snapshot commands require %s=true", config.EnvR2Enabled)
			}
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "download",
			Short: "Fetch the published bundle into the data directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := signalContext(cmd.Context())
				defer cancel()

				client, err := newR2Client(ctx, e.cfg)
				if err != nil {
					return err
				}
				m := snapshot.New(client, snapshot.Config{Key: e.cfg.R2SnapshotKey}, e.log)
				etag, n, err := m.Download(ctx, e.cfg.ProgramsDir())
				if errors.Is(err, snapshot.ErrNotFound) {
					return fmt.Errorf("no snapshot at %s", e.cfg.R2SnapshotKey)
				}
				if err != nil {
					return err
				}
				return printTransfer(cmd, e, "Downloaded", n, etag)
			},
		},
		&cobra.Command{
			Use:   "upload",
			Short: "Publish the data directory without scraping",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := signalContext(cmd.Context())
				defer cancel()

				client, err := newR2Client(ctx, e.cfg)
				if err != nil {
					return err
				}
				m := snapshot.New(client, snapshot.Config{Key: e.cfg.R2SnapshotKey}, e.log)
				lock := r2client.NewDistributedLock(client, e.cfg.R2LockKey, config.IngestLockTTL)

				var (
					etag string
					n    int
				)
				err = snapshot.WithLock(ctx, lock, config.IngestLockRenewInterval, func(ctx context.Context) error {
					var uerr error
					etag, n, uerr = m.Upload(ctx, e.cfg.ProgramsDir())
					return uerr
				})
				if err != nil {
					return err
				}
				return printTransfer(cmd, e, "Uploaded", n, etag)
			},
		},
	)
	return cmd
}

func printTransfer(cmd *cobra.Command, e *env, verb string, files int, etag string) error {
	if e.format == formatJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]any{
			"key":   e.cfg.R2SnapshotKey,
			"files": files,
			"etag":  etag,
		})
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %d file(s) (%s, etag %s)\n", verb, files, e.cfg.R2SnapshotKey, etag)
	return err
}
