package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/snehjoshi/amqpbridge/internal/config"
	"github.com/snehjoshi/amqpbridge/internal/spool"
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

func runDecode(_ context.Context, cfg *config.Config, args []string) error {
	fs := subFlags("decode", "[file]")
	asHex := fs.Bool("hex", false, "input is hex text rather than raw bytes")
	asValue := fs.Bool("value", false, "decode a single value instead of a message")
	fromSpool := fs.Bool("spool", false, "print the received-message journal under data_dir")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return errUsage
	}
	if *fromSpool {
		return printSpool(os.Stdout, filepath.Join(cfg.DataDir, spoolFile))
	}

	var in io.Reader = os.Stdin
	if fs.NArg() == 1 && fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	buf, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if *asHex {
		buf, err = hex.DecodeString(string(bytes.Join(bytes.Fields(buf), nil)))
		if err != nil {
			return fmt.Errorf("decode hex: %w", err)
		}
	}
	return decode(os.Stdout, buf, *asValue)
}

func decode(w io.Writer, buf []byte, asValue bool) error {
	if asValue {
		v, err := value.Unmarshal(buf)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %s\n", v.Kind(), v)
		return nil
	}
	msg, err := model.UnmarshalMessage(buf)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "message (%d bytes)\n", len(buf))
	printMessage(w, msg)
	return nil
}

func printSpool(w io.Writer, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	s, err := spool.Open(path, 0)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.ForEach(func(e spool.Entry) error {
		fmt.Fprintf(w, "#%d %s link=%s\n", e.Seq, e.ReceivedAt.UTC().Format(time.RFC3339Nano), e.Link)
		msg, err := e.Decode()
		if err != nil {
			fmt.Fprintf(w, "  (undecodable: %v)\n", err)
			return nil
		}
		printMessage(w, msg)
		return nil
	})
}
