package capi

import (
	"github.com/snehjoshi/amqpbridge/pkg/bridge"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// ─── management ───────────────────────────────────────────────────────────────

func ManagementCreate() Handle { return newHandle(bridge.NewManagement()) }

// ManagementOpen attaches the request and reply links to node on a begun
// session. An empty node means $management.
func ManagementOpen(ctx, mgmt, sess Handle, node string) Status {
	const op = "management.open"
	return onObject(ctx, mgmt, op, "management", func(cc *bridge.CallContext, m *bridge.Management) error {
		se, ok := lookup[*bridge.Session](sess)
		if !ok {
			return record(cc, invalid(op, "session", sess))
		}
		return m.Open(cc, se, node)
	})
}

// ManagementCall sends one request and waits for its reply. body and
// appProps may be Null; appProps must be a map with string keys. On success
// it returns the reply's status code and a new message handle for the reply.
func ManagementCall(ctx, mgmt Handle, operation, typ, locales string, body, appProps Handle) (int64, Handle, Status) {
	const op = "management.call"
	var (
		code  int64
		reply = Null
	)
	st := onObject(ctx, mgmt, op, "management", func(cc *bridge.CallContext, m *bridge.Management) error {
		b, ok := optional[*value.Value](body)
		if !ok {
			return record(cc, invalid(op, "value", body))
		}
		props, ok := optional[*value.Value](appProps)
		if !ok {
			return record(cc, invalid(op, "value", appProps))
		}
		resp, err := m.Call(cc, &bridge.ManagementRequest{
			Operation:             operation,
			Type:                  typ,
			Locales:               locales,
			Body:                  b,
			ApplicationProperties: props,
		})
		if err != nil {
			return err
		}
		code, reply = resp.StatusCode, newHandle(resp.Message)
		return nil
	})
	return code, reply, st
}

func ManagementClose(ctx, mgmt Handle) Status {
	return onObject(ctx, mgmt, "management.close", "management", func(cc *bridge.CallContext, m *bridge.Management) error {
		return m.Close(cc)
	})
}

// ─── claims-based security ────────────────────────────────────────────────────

func CBSCreate() Handle { return newHandle(bridge.NewClaimsBasedSecurity()) }

func CBSOpen(ctx, cbs, sess Handle) Status {
	const op = "cbs.open"
	return onObject(ctx, cbs, op, "cbs", func(cc *bridge.CallContext, c *bridge.ClaimsBasedSecurity) error {
		se, ok := lookup[*bridge.Session](sess)
		if !ok {
			return record(cc, invalid(op, "session", sess))
		}
		return c.Open(cc, se)
	})
}

// CBSPutToken authorizes audience with token until expiresAtMs, in
// milliseconds since the Unix epoch.
func CBSPutToken(ctx, cbs Handle, tokenType, audience, token string, expiresAtMs int64) Status {
	return onObject(ctx, cbs, "cbs.put_token", "cbs", func(cc *bridge.CallContext, c *bridge.ClaimsBasedSecurity) error {
		return c.PutToken(cc, tokenType, audience, token, expiresAtMs)
	})
}

func CBSClose(ctx, cbs Handle) Status {
	return onObject(ctx, cbs, "cbs.close", "cbs", func(cc *bridge.CallContext, c *bridge.ClaimsBasedSecurity) error {
		return c.Close(cc)
	})
}
