package bridge

import (
	"go.uber.org/zap"

	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// CBSNode is the address of the claims-based security node.
const CBSNode = "$cbs"

// Token types understood by common CBS nodes.
const (
	TokenTypeJWT = "jwt"
	TokenTypeSAS = "servicebus.windows.net:sastoken"
)

// ClaimsBasedSecurity puts authorization tokens on a $cbs node.
type ClaimsBasedSecurity struct {
	mgmt *Management
}

// NewClaimsBasedSecurity returns a closed CBS client.
func NewClaimsBasedSecurity() *ClaimsBasedSecurity {
	return &ClaimsBasedSecurity{mgmt: &Management{node: CBSNode}}
}

// Open attaches the request and reply links on session.
func (c *ClaimsBasedSecurity) Open(cc *CallContext, session *Session) error {
	return c.mgmt.Open(cc, session, CBSNode)
}

// PutToken authorizes audience with token until expiresAtMs, in milliseconds
// since the Unix epoch.
func (c *ClaimsBasedSecurity) PutToken(cc *CallContext, tokenType, audience, token string, expiresAtMs int64) error {
	const op = "cbs.put_token"
	if tokenType == "" || audience == "" {
		return cc.fail(op, argumentError(op, "token type and audience are required"))
	}
	props := value.NewMap()
	_ = props.Insert(value.String("name"), value.String(audience))
	_ = props.Insert(value.String("expiration"), value.TimestampMillis(expiresAtMs))
	resp, err := c.mgmt.Call(cc, &ManagementRequest{
		Operation:             "put-token",
		Type:                  tokenType,
		Body:                  value.String(token),
		ApplicationProperties: props,
	})
	if err != nil {
		return err
	}
	cc.log().Debug("token put", zap.String("audience", audience), zap.Int64("status", resp.StatusCode))
	return nil
}

// Close detaches the CBS links.
func (c *ClaimsBasedSecurity) Close(cc *CallContext) error { return c.mgmt.Close(cc) }

// Discard detaches the CBS links without a call context.
func (c *ClaimsBasedSecurity) Discard() error { return c.mgmt.Discard() }
