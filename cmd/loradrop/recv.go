package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loradrop/loradrop/transfer"
)

func newRecvCmd(flags *rootFlags) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "recv",
		Short: "receive one file and write it to the output directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := flags.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sess, err := flags.openSession()
			if err != nil {
				return err
			}
			defer sess.Close()

			receiver := transfer.NewReceiver(sess, flags.transferConfig(), transfer.WithLogger(log))
			res, err := receiver.Receive(ctx)
			if err != nil {
				return err
			}

			name := filepath.Join(outDir, fmt.Sprintf("received_%04X.bin", uint16(res.FileID)))
			if err := os.WriteFile(name, res.Data, 0o644); err != nil {
				return err
			}

			if !res.Complete {
				log.Warn("wrote partial file",
					zap.String("file", name),
					zap.Int("missing_chunks", res.Missing),
				)
				return fmt.Errorf("%w: %d of %d chunks missing", errPartial, res.Missing, res.TotalChunks)
			}

			log.Info("file received",
				zap.String("file", name),
				zap.Int("size", len(res.Data)),
				zap.String("digest", transfer.Digest(res.Data)),
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", ".", "directory for received files")
	return cmd
}
