package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/internal/config"
	"github.com/snehjoshi/amqpbridge/internal/node"
	"github.com/snehjoshi/amqpbridge/internal/spool"
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/model"
)

// spoolFile is the journal's file name under data_dir.
const spoolFile = "spool.db"

// waitSlice bounds each blocking wait so an interrupt is noticed promptly.
const waitSlice = 500 * time.Millisecond

func runReceive(ctx context.Context, cfg *config.Config, args []string) error {
	fs := subFlags("receive", "<address>")
	count := fs.Int("count", 0, "stop after this many messages, 0 for no limit")
	timeout := fs.Duration("timeout", 0, "stop when no message arrives for this long, 0 to wait forever")
	quiet := fs.Bool("quiet", false, "do not print messages")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 1 || *count < 0 {
		fs.Usage()
		return errUsage
	}
	address := fs.Arg(0)

	var journal *spool.Spool
	if cfg.Spool.Enabled {
		if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		var err error
		journal, err = spool.Open(filepath.Join(cfg.DataDir, spoolFile), cfg.Spool.MaxEntries)
		if err != nil {
			return err
		}
		defer journal.Close()
	}

	a, err := connect(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	source, err := sourceFor(address)
	if err != nil {
		return err
	}
	opts, err := receiverOptions(cfg.Receiver)
	if err != nil {
		return err
	}
	rcv := bridge.NewReceiver()
	if err := rcv.Attach(a.cc, a.sess, source, opts); err != nil {
		return err
	}
	defer func() {
		if err := rcv.DetachAndRelease(a.cc); err != nil {
			a.log.Warn("receiver detach", zap.Error(err))
		}
	}()

	ref, err := rcv.Retain()
	if err != nil {
		return err
	}
	link := ref.LinkName()
	ref.Release()

	if opts.ManualCredit {
		if err := rcv.IssueCredit(a.cc, 1); err != nil {
			return err
		}
	}

	received := 0
	idleSince := time.Now()
	for *count == 0 || received < *count {
		if ctx.Err() != nil {
			break
		}
		msg, err := rcv.WaitTimeout(a.cc, waitSlice)
		if err != nil {
			return fmt.Errorf("after %d messages: %w", received, err)
		}
		if msg == nil {
			if *timeout > 0 && time.Since(idleSince) >= *timeout {
				a.log.Info("receive timed out", zap.Duration("timeout", *timeout))
				break
			}
			continue
		}
		idleSince = time.Now()
		received++

		if journal != nil {
			seq, err := journal.Append(link, msg)
			if err != nil {
				return err
			}
			a.log.Debug("message journaled", zap.Uint64("seq", seq))
		}
		if !*quiet {
			fmt.Printf("message %d on %s\n", received, link)
			printMessage(os.Stdout, msg)
		}
		if !opts.AutoAccept {
			if err := rcv.Accept(a.cc, msg); err != nil {
				return err
			}
		}
		if opts.ManualCredit {
			if err := rcv.IssueCredit(a.cc, 1); err != nil {
				return err
			}
		}
	}
	a.log.Info("receive finished", zap.String("address", address), zap.Int("received", received))
	return nil
}

func sourceFor(address string) (*model.Source, error) {
	b := model.NewSourceBuilder()
	if err := b.SetAddress(address); err != nil {
		return nil, err
	}
	return b.Build()
}

func receiverOptions(c config.ReceiverConfig) (*bridge.ReceiverOptions, error) {
	b := bridge.NewReceiverOptionsBuilder()
	name := c.Name
	if name == "" {
		name = node.LinkName("receiver")
	}
	if err := b.SetName(name); err != nil {
		return nil, err
	}
	if c.Credit == 0 {
		if err := b.SetCreditModeManual(); err != nil {
			return nil, err
		}
	} else if err := b.SetCreditModeAuto(c.Credit); err != nil {
		return nil, err
	}
	mode := bridge.ReceiverSettleFirst
	if c.SettleMode == config.SettleSecond {
		mode = bridge.ReceiverSettleSecond
	}
	if err := b.SetReceiverSettleMode(mode); err != nil {
		return nil, err
	}
	if err := b.SetAutoAccept(c.AutoAccept); err != nil {
		return nil, err
	}
	if err := b.SetChannelCapacity(c.ChannelCapacity); err != nil {
		return nil, err
	}
	return b.Build()
}
