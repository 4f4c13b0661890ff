package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/internal/config"
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
)

var tokenTypes = map[string]string{
	"jwt": bridge.TokenTypeJWT,
	"sas": bridge.TokenTypeSAS,
}

func runPutToken(_ context.Context, cfg *config.Config, args []string) error {
	fs := subFlags("put-token", "<audience> <token>")
	kind := fs.String("type", "jwt", "token type: jwt or sas")
	ttl := fs.Duration("ttl", time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	tokenType, ok := tokenTypes[*kind]
	if fs.NArg() != 2 || !ok || *ttl <= 0 {
		fs.Usage()
		return errUsage
	}
	audience, token := fs.Arg(0), fs.Arg(1)

	a, err := connect(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	cbs := bridge.NewClaimsBasedSecurity()
	if err := cbs.Open(a.cc, a.sess); err != nil {
		return err
	}
	defer func() {
		if err := cbs.Close(a.cc); err != nil {
			a.log.Warn("cbs close", zap.Error(err))
		}
	}()

	expires := time.Now().Add(*ttl)
	if err := cbs.PutToken(a.cc, tokenType, audience, token, expires.UnixMilli()); err != nil {
		return err
	}
	fmt.Printf("token accepted for %s until %s\n", audience, expires.UTC().Format(time.RFC3339))
	return nil
}
