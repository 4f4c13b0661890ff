// Command amqpbridge drives the bridge from the shell: it sends and receives
// messages, decodes AMQP bytes, and puts CBS tokens.
//
// Usage:
//
//	amqpbridge [--config path/to/config.yaml] <command> [flags] [args]
//
// Commands:
//
//	send       <address> <body>     send text messages
//	receive    <address>            print (and optionally journal) messages
//	decode     [file]               decode an encoded message or value
//	put-token  <audience> <token>   authorize audience on the $cbs node
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/snehjoshi/amqpbridge/internal/config"
)

var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, cfg *config.Config, args []string) error
}

var commands = []command{
	{"send", "send text messages to an address", runSend},
	{"receive", "receive messages from an address", runReceive},
	{"decode", "decode an encoded message or value", runDecode},
	{"put-token", "put a token on the $cbs node", runPutToken},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "amqpbridge: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("amqpbridge", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to config file")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		usage(fs)
		return errUsage
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, cfg, fs.Args()[1:])
		}
	}
	usage(fs)
	return fmt.Errorf("unknown command %q", name)
}

func usage(fs *flag.FlagSet) {
	out := fs.Output()
	fmt.Fprintln(out, "usage: amqpbridge [--config file] <command> [flags] [args]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "commands:")
	for _, c := range commands {
		fmt.Fprintf(out, "  %-10s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(out)
	fs.PrintDefaults()
}

// subFlags returns a flag set for a command that reports usage errors
// without exiting.
func subFlags(name, args string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: amqpbridge %s [flags] %s\n", name, args)
		fs.PrintDefaults()
	}
	return fs
}
