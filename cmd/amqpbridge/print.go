package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// printMessage writes a human-readable rendering of msg, one section per
// line.
func printMessage(w io.Writer, msg *model.Message) {
	if h := msg.Header(); h != nil {
		fmt.Fprintf(w, "  header: durable=%t priority=%d delivery-count=%d", h.Durable(), h.Priority(), h.DeliveryCount())
		if ttl, ok := h.TTL(); ok {
			fmt.Fprintf(w, " ttl=%s", ttl)
		}
		fmt.Fprintln(w)
	}
	if p := msg.Properties(); p != nil {
		fmt.Fprint(w, "  properties:")
		if id, ok := p.MessageID(); ok {
			fmt.Fprintf(w, " message-id=%s", id)
		}
		if id, ok := p.CorrelationID(); ok {
			fmt.Fprintf(w, " correlation-id=%s", id)
		}
		for _, f := range []struct {
			name string
			get  func() (string, bool)
		}{
			{"to", p.To},
			{"subject", p.Subject},
			{"reply-to", p.ReplyTo},
			{"content-type", p.ContentType},
			{"group-id", p.GroupID},
		} {
			if s, ok := f.get(); ok {
				fmt.Fprintf(w, " %s=%s", f.name, strconv.Quote(s))
			}
		}
		if t, ok := p.CreationTime(); ok {
			fmt.Fprintf(w, " creation-time=%s", t.UTC().Format(time.RFC3339Nano))
		}
		fmt.Fprintln(w)
	}
	printMap(w, "delivery-annotations", msg.DeliveryAnnotations)
	printMap(w, "message-annotations", msg.MessageAnnotations)
	printMap(w, "application-properties", msg.ApplicationProperties)

	switch msg.BodyKind() {
	case model.BodyData:
		for i, d := range msg.Data() {
			fmt.Fprintf(w, "  data[%d]: %q\n", i, d)
		}
	case model.BodySequence:
		for i, s := range msg.Sequence() {
			fmt.Fprintf(w, "  sequence[%d]: %s\n", i, s)
		}
	case model.BodyValue:
		v, _ := msg.Value()
		fmt.Fprintf(w, "  value: %s\n", v)
	default:
		fmt.Fprintln(w, "  (no body)")
	}
	printMap(w, "footer", msg.Footer)
}

func printMap(w io.Writer, name string, get func() (*value.Value, bool)) {
	if v, ok := get(); ok {
		fmt.Fprintf(w, "  %s: %s\n", name, v)
	}
}
