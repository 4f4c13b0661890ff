package capi

import (
	"github.com/snehjoshi/amqpbridge/pkg/model"
	"github.com/snehjoshi/amqpbridge/pkg/value"
)

// MessageGetHeader returns a new header handle, or Null and StatusNotPresent
// when the message has no header.
func MessageGetHeader(m Handle) (Handle, Status) {
	return optionalField(m, func(msg *model.Message) (Handle, bool) {
		h := msg.Header()
		if h == nil {
			return Null, false
		}
		return newHandle(h), true
	})
}

func MessageGetProperties(m Handle) (Handle, Status) {
	return optionalField(m, func(msg *model.Message) (Handle, bool) {
		p := msg.Properties()
		if p == nil {
			return Null, false
		}
		return newHandle(p), true
	})
}

func MessageGetDeliveryAnnotations(m Handle) (Handle, Status) {
	return optionalValue(m, (*model.Message).DeliveryAnnotations)
}

func MessageGetMessageAnnotations(m Handle) (Handle, Status) {
	return optionalValue(m, (*model.Message).MessageAnnotations)
}

func MessageGetApplicationProperties(m Handle) (Handle, Status) {
	return optionalValue(m, (*model.Message).ApplicationProperties)
}

func MessageGetFooter(m Handle) (Handle, Status) {
	return optionalValue(m, (*model.Message).Footer)
}

func MessageGetBodyType(m Handle) (model.BodyKind, Status) {
	return field(m, (*model.Message).BodyKind)
}

func MessageGetBodyDataCount(m Handle) (uint32, Status) {
	return field(m, func(msg *model.Message) uint32 { return uint32(len(msg.Data())) })
}

// MessageGetBodyData returns a copy of data section index.
func MessageGetBodyData(m Handle, index uint32) ([]byte, Status) {
	return optionalField(m, func(msg *model.Message) ([]byte, bool) {
		data := msg.Data()
		if int(index) >= len(data) {
			return nil, false
		}
		return data[index], true
	})
}

func MessageGetBodySequenceCount(m Handle) (uint32, Status) {
	return field(m, func(msg *model.Message) uint32 { return uint32(len(msg.Sequence())) })
}

// MessageGetBodySequence returns a list value handle for sequence section
// index.
func MessageGetBodySequence(m Handle, index uint32) (Handle, Status) {
	return optionalValue(m, func(msg *model.Message) (*value.Value, bool) {
		seq := msg.Sequence()
		if int(index) >= len(seq) {
			return nil, false
		}
		return seq[index], true
	})
}

func MessageGetBodyValue(m Handle) (Handle, Status) {
	return optionalValue(m, (*model.Message).Value)
}

// MessageSerialize returns the wire form of the message.
func MessageSerialize(m Handle) ([]byte, Status) {
	var out []byte
	st := apply(m, func(msg *model.Message) error {
		var err error
		out, err = msg.Marshal()
		return err
	})
	return out, st
}

// MessageDeserialize decodes a sequence of message sections. Malformed or
// misordered sections yield Null and StatusError.
func MessageDeserialize(buf []byte) (h Handle, st Status) {
	defer recovered(nil, "", &st)
	msg, err := model.UnmarshalMessage(buf)
	if err != nil {
		return Null, StatusError
	}
	return newHandle(msg), StatusOK
}

// ─── builder ──────────────────────────────────────────────────────────────────

func MessageBuilderCreate() Handle { return newHandle(model.NewMessageBuilder()) }

func MessageBuilderSetHeader(b, header Handle) Status {
	h, ok := lookup[*model.Header](header)
	if !ok {
		return StatusError
	}
	return apply(b, func(mb *model.MessageBuilder) error { return mb.SetHeader(h) })
}

func MessageBuilderSetProperties(b, props Handle) Status {
	p, ok := lookup[*model.Properties](props)
	if !ok {
		return StatusError
	}
	return apply(b, func(mb *model.MessageBuilder) error { return mb.SetProperties(p) })
}

// MessageBuilderSetDeliveryAnnotations takes a map whose keys are symbols or
// ulongs.
func MessageBuilderSetDeliveryAnnotations(b, annotations Handle) Status {
	return setValue(b, annotations, (*model.MessageBuilder).SetDeliveryAnnotations)
}

func MessageBuilderSetMessageAnnotations(b, annotations Handle) Status {
	return setValue(b, annotations, (*model.MessageBuilder).SetMessageAnnotations)
}

// MessageBuilderSetApplicationProperties takes a map with string keys.
func MessageBuilderSetApplicationProperties(b, props Handle) Status {
	return setValue(b, props, (*model.MessageBuilder).SetApplicationProperties)
}

func MessageBuilderSetFooter(b, footer Handle) Status {
	return setValue(b, footer, (*model.MessageBuilder).SetFooter)
}

// MessageBuilderAddBodyData appends a data section. Data, sequence and value
// bodies do not mix.
func MessageBuilderAddBodyData(b Handle, data []byte) Status {
	return apply(b, func(mb *model.MessageBuilder) error { return mb.AddData(data) })
}

// MessageBuilderAddBodySequence appends a sequence section from a list value.
func MessageBuilderAddBodySequence(b, list Handle) Status {
	return setValue(b, list, (*model.MessageBuilder).AddSequence)
}

func MessageBuilderSetBodyValue(b, v Handle) Status {
	return setValue(b, v, (*model.MessageBuilder).SetValue)
}

// MessageBuilderBuild consumes the builder.
func MessageBuilderBuild(b Handle) Handle { return build(b, (*model.MessageBuilder).Build) }
