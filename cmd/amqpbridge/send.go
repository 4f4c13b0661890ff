package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/snehjoshi/amqpbridge/internal/config"
	"github.com/snehjoshi/amqpbridge/internal/node"
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

func runSend(ctx context.Context, cfg *config.Config, args []string) error {
	fs := subFlags("send", "<address> <body>")
	count := fs.Int("count", 1, "number of messages to send")
	subject := fs.String("subject", "", "properties subject")
	contentType := fs.String("content-type", "text/plain", "properties content type")
	durable := fs.Bool("durable", false, "mark messages durable")
	ratePerSec := fs.Float64("rate", cfg.Sender.Rate, "messages per second, 0 for unlimited")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 2 || *count < 1 {
		fs.Usage()
		return errUsage
	}
	address, body := fs.Arg(0), fs.Arg(1)

	a, err := connect(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	target, err := targetFor(address)
	if err != nil {
		return err
	}
	opts, err := senderOptions(cfg.Sender)
	if err != nil {
		return err
	}
	snd := bridge.NewSender()
	if err := snd.Attach(a.cc, a.sess, target, opts); err != nil {
		return err
	}
	defer func() {
		if err := snd.DetachAndRelease(a.cc); err != nil {
			a.log.Warn("sender detach", zap.Error(err))
		}
	}()

	limit := rate.Inf
	if *ratePerSec > 0 {
		limit = rate.Limit(*ratePerSec)
	}
	limiter := rate.NewLimiter(limit, max(cfg.Sender.Burst, 1))

	start := time.Now()
	for i := 0; i < *count; i++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("sent %d of %d: %w", i, *count, err)
		}
		msg, err := textMessage(body, *subject, *contentType, *durable)
		if err != nil {
			return err
		}
		if err := snd.Send(a.cc, msg); err != nil {
			return fmt.Errorf("sent %d of %d: %w", i, *count, err)
		}
	}
	a.log.Info("messages sent",
		zap.String("address", address),
		zap.Int("count", *count),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

func targetFor(address string) (*model.Target, error) {
	b := model.NewTargetBuilder()
	if err := b.SetAddress(address); err != nil {
		return nil, err
	}
	return b.Build()
}

func senderOptions(c config.SenderConfig) (*bridge.SenderOptions, error) {
	b := bridge.NewSenderOptionsBuilder()
	name := c.Name
	if name == "" {
		name = node.LinkName("sender")
	}
	if err := b.SetName(name); err != nil {
		return nil, err
	}
	return b.Build()
}

// textMessage builds a message with a fresh message id and a string value
// body.
func textMessage(body, subject, contentType string, durable bool) (*model.Message, error) {
	pb := model.NewPropertiesBuilder()
	if err := pb.SetMessageID(value.String(node.MustNewID())); err != nil {
		return nil, err
	}
	if subject != "" {
		if err := pb.SetSubject(subject); err != nil {
			return nil, err
		}
	}
	if err := pb.SetContentType(contentType); err != nil {
		return nil, err
	}
	if err := pb.SetCreationTime(time.Now()); err != nil {
		return nil, err
	}
	props, err := pb.Build()
	if err != nil {
		return nil, err
	}

	mb := model.NewMessageBuilder()
	if durable {
		hb := model.NewHeaderBuilder()
		if err := hb.SetDurable(true); err != nil {
			return nil, err
		}
		h, err := hb.Build()
		if err != nil {
			return nil, err
		}
		if err := mb.SetHeader(h); err != nil {
			return nil, err
		}
	}
	if err := mb.SetProperties(props); err != nil {
		return nil, err
	}
	if err := mb.SetValue(value.String(body)); err != nil {
		return nil, err
	}
	return mb.Build()
}
