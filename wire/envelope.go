package wire

import "errors"

// Reply envelopes are lists. An empty list is a void success, a
// single-element list is a success carrying the result, and a list of two
// or more elements is a failure carrying [code, message, details].

// EncodeSuccess builds the reply for a call that produced a value.
func (c *MessageCodec) EncodeSuccess(value any) ([]byte, error) {
	return c.EncodeMessage([]any{value})
}

// EncodeVoidSuccess builds the reply for a call with no result value.
func (c *MessageCodec) EncodeVoidSuccess() ([]byte, error) {
	return c.EncodeMessage([]any{})
}

// EncodeError builds a failure reply from err. A RemoteError keeps its
// structured code and details; any other error is wrapped under the
// generic code with its message.
func (c *MessageCodec) EncodeError(err error) ([]byte, error) {
	var re *RemoteError
	if errors.As(err, &re) {
		return c.EncodeMessage([]any{re.Code, re.Message, re.Details})
	}
	return c.EncodeMessage([]any{CodeGeneric, err.Error(), nil})
}

// DecodeReply interprets the reply bytes for channel. A nil reply means
// the message was never delivered and yields a ConnectionError. wantValue
// states whether the method returns a value; nullable states whether that
// value may be null.
func (c *MessageCodec) DecodeReply(channel string, reply []byte, wantValue, nullable bool) (any, error) {
	if reply == nil {
		return nil, &ConnectionError{Channel: channel, Reason: "no handler registered"}
	}
	v, err := c.DecodeMessage(reply)
	if err != nil {
		return nil, protocolViolation(channel, "undecodable reply: %v", err)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, protocolViolation(channel, "reply is %T, want a list", v)
	}
	switch {
	case len(list) >= 2:
		code, ok := list[0].(string)
		if !ok {
			return nil, protocolViolation(channel, "failure code is %T, want a string", list[0])
		}
		re := &RemoteError{Code: code}
		if msg, ok := list[1].(string); ok {
			re.Message = msg
		}
		if len(list) > 2 {
			re.Details = list[2]
		}
		return nil, re

	case len(list) == 1:
		if list[0] == nil && wantValue && !nullable {
			return nil, protocolViolation(channel, "null result for a non-nullable return")
		}
		return list[0], nil

	default:
		if wantValue {
			return nil, protocolViolation(channel, "empty reply for a value-returning method")
		}
		return nil, nil
	}
}

// DecodeArguments unwraps the positional argument list of an incoming
// call. Senders always wrap arguments, even a single one, in a list.
func (c *MessageCodec) DecodeArguments(channel string, message []byte) ([]any, error) {
	v, err := c.DecodeMessage(message)
	if err != nil {
		return nil, protocolViolation(channel, "undecodable arguments: %v", err)
	}
	if v == nil {
		return nil, nil
	}
	args, ok := v.([]any)
	if !ok {
		return nil, protocolViolation(channel, "arguments are %T, want a list", v)
	}
	return args, nil
}
