package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/loradrop/loradrop/transfer"
	"github.com/loradrop/loradrop/transport/sx126x"
)

// errPartial marks a receive that finalized with chunks still missing.
var errPartial = errors.New("transfer incomplete")

type rootFlags struct {
	port    string
	baud    int
	addr    uint16
	channel uint8

	chunkSize int
	pacing    time.Duration
	retryCap  int
	verbose   bool
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "loradrop",
		Short:         "file transfer over an SX126x LoRa link with selective retransmission",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.port, "port", "/dev/ttyS0", "serial device of the LoRa module")
	pf.IntVar(&flags.baud, "baud", 9600, "UART baud rate of the module")
	pf.Uint16Var(&flags.addr, "addr", 0, "this node's link address")
	pf.Uint8Var(&flags.channel, "channel", 18, "module channel byte")
	pf.IntVar(&flags.chunkSize, "chunk-size", transfer.DefaultConfig().ChunkSize, "file bytes per packet")
	pf.DurationVar(&flags.pacing, "pacing", transfer.DefaultConfig().PacingDelay, "delay between packets in a burst")
	pf.IntVar(&flags.retryCap, "retry-rounds", transfer.DefaultConfig().MaxRetryRounds, "max retransmission rounds")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newSendCmd(flags),
		newRecvCmd(flags),
		newWatchCmd(flags),
	)
	return cmd
}

func (f *rootFlags) logger() (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !f.verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func (f *rootFlags) openSession() (*sx126x.Session, error) {
	return sx126x.Open(sx126x.Config{
		Port:    f.port,
		Baud:    f.baud,
		Address: f.addr,
		Channel: f.channel,
	})
}

func (f *rootFlags) transferConfig() transfer.Config {
	cfg := transfer.DefaultConfig()
	cfg.ChunkSize = f.chunkSize
	cfg.PacingDelay = f.pacing
	cfg.MaxRetryRounds = f.retryCap
	return cfg
}
