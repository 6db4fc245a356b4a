package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loradrop/loradrop/transfer"
)

func newSendCmd(flags *rootFlags) *cobra.Command {
	var dest uint16

	cmd := &cobra.Command{
		Use:   "send <file>",
		Short: "send a file to another node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := flags.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return sendFile(ctx, flags, dest, args[0], data, log)
		},
	}

	cmd.Flags().Uint16Var(&dest, "dest", 0, "destination node address")
	return cmd
}

// sendFile runs one transfer over a fresh session, which is released
// on every exit path.
func sendFile(ctx context.Context, flags *rootFlags, dest uint16, name string, data []byte, log *zap.Logger) error {
	sess, err := flags.openSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	sender := transfer.NewSender(sess, dest, flags.transferConfig(), transfer.WithLogger(log))
	res, err := sender.Send(ctx, data)
	if err != nil {
		return fmt.Errorf("send %s: %w (%d chunks unacknowledged)", name, err, res.Residual)
	}

	log.Info("file sent",
		zap.String("file", name),
		zap.Int("size", len(data)),
		zap.Int("chunks", res.TotalChunks),
		zap.Int("retry_rounds", res.Rounds),
		zap.String("digest", transfer.Digest(data)),
	)
	return nil
}
