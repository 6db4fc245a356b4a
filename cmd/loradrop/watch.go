package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var (
		dest uint16
		dir  string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "watch a directory and send every newly created file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := flags.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()
			if err := watcher.Add(dir); err != nil {
				return err
			}
			log.Info("watching for new files", zap.String("dir", dir))

			for {
				select {
				case <-ctx.Done():
					return nil
				case err := <-watcher.Errors:
					return err
				case ev := <-watcher.Events:
					if !ev.Has(fsnotify.Create) {
						continue
					}
					// give the writer a moment to finish the file
					time.Sleep(time.Second)

					data, err := os.ReadFile(ev.Name)
					if err != nil {
						log.Warn("skipping unreadable file", zap.String("file", ev.Name), zap.Error(err))
						continue
					}
					if err := sendFile(ctx, flags, dest, ev.Name, data, log); err != nil {
						if ctx.Err() != nil {
							return nil
						}
						log.Error("send failed", zap.String("file", ev.Name), zap.Error(err))
					}
				}
			}
		},
	}

	cmd.Flags().Uint16Var(&dest, "dest", 0, "destination node address")
	cmd.Flags().StringVar(&dir, "dir", ".", "directory to watch")
	return cmd
}
