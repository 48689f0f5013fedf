package wire

import (
	"errors"
	"fmt"
	"testing"
)

const testChannel = "dev.flutter.pigeon.example.ExampleHostApi.echo"

func TestEnvelope_VoidSuccess(t *testing.T) {
	c := NewMessageCodec()
	reply, err := c.EncodeVoidSuccess()
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.DecodeReply(testChannel, reply, false, false)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if v != nil {
		t.Errorf("value = %#v, want nil", v)
	}
}

func TestEnvelope_ValueSuccess(t *testing.T) {
	c := NewMessageCodec()
	reply, err := c.EncodeSuccess(int64(41))
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.DecodeReply(testChannel, reply, true, false)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if v != int64(41) {
		t.Errorf("value = %#v, want 41", v)
	}
}

func TestEnvelope_NullableNullSuccess(t *testing.T) {
	c := NewMessageCodec()
	reply, err := c.EncodeSuccess(nil)
	if err != nil {
		t.Fatal(err)
	}
	v, err := c.DecodeReply(testChannel, reply, true, true)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if v != nil {
		t.Errorf("value = %#v, want nil", v)
	}
}

func TestEnvelope_GenericError(t *testing.T) {
	c := NewMessageCodec()
	reply, err := c.EncodeError(fmt.Errorf("An error"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.DecodeReply(testChannel, reply, false, false)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if re.Code != CodeGeneric {
		t.Errorf("Code = %q, want %q", re.Code, CodeGeneric)
	}
	if re.Message != "An error" {
		t.Errorf("Message = %q, want %q", re.Message, "An error")
	}
	if re.Details != nil {
		t.Errorf("Details = %#v, want nil", re.Details)
	}
}

func TestEnvelope_StructuredErrorKeepsCodeAndDetails(t *testing.T) {
	c := NewMessageCodec()
	in := &RemoteError{Code: "state", Message: "busy", Details: []any{int64(1)}}
	reply, err := c.EncodeError(in)
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.DecodeReply(testChannel, reply, true, false)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if re.Code != "state" || re.Message != "busy" {
		t.Errorf("got %q/%q, want state/busy", re.Code, re.Message)
	}
	details, ok := re.Details.([]any)
	if !ok || len(details) != 1 || details[0] != int64(1) {
		t.Errorf("Details = %#v, want [1]", re.Details)
	}
}

func TestEnvelope_NilReplyIsConnectionError(t *testing.T) {
	c := NewMessageCodec()
	_, err := c.DecodeReply(testChannel, nil, true, false)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
	if ce.Channel != testChannel {
		t.Errorf("Channel = %q, want %q", ce.Channel, testChannel)
	}
}

func TestEnvelope_ProtocolViolations(t *testing.T) {
	c := NewMessageCodec()
	encode := func(v any) []byte {
		t.Helper()
		data, err := c.EncodeMessage(v)
		if err != nil {
			t.Fatal(err)
		}
		return data
	}

	tests := []struct {
		name      string
		reply     []byte
		wantValue bool
		nullable  bool
	}{
		{"non-list reply", encode("done"), true, false},
		{"null for non-nullable", encode([]any{nil}), true, false},
		{"empty reply for value method", encode([]any{}), true, true},
		{"non-string failure code", encode([]any{int64(1), "msg", nil}), false, false},
		{"garbage bytes", []byte{0xff, 0xff}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeReply(testChannel, tt.reply, tt.wantValue, tt.nullable)
			var ce *ConnectionError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want ConnectionError", err)
			}
		})
	}
}

func TestEnvelope_ExtraSuccessElementsAreFailure(t *testing.T) {
	// Two or more elements always mean failure, whatever the types.
	c := NewMessageCodec()
	reply, err := c.EncodeMessage([]any{"code", "message", "details"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = c.DecodeReply(testChannel, reply, true, false)
	var re *RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want RemoteError", err)
	}
	if re.Details != "details" {
		t.Errorf("Details = %#v, want %q", re.Details, "details")
	}
}

func TestDecodeArguments(t *testing.T) {
	c := NewMessageCodec()
	msg, err := c.EncodeMessage([]any{int64(41), "x"})
	if err != nil {
		t.Fatal(err)
	}
	args, err := c.DecodeArguments(testChannel, msg)
	if err != nil {
		t.Fatalf("DecodeArguments: %v", err)
	}
	if len(args) != 2 || args[0] != int64(41) || args[1] != "x" {
		t.Errorf("args = %#v", args)
	}

	bad, err := c.EncodeMessage("not a list")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.DecodeArguments(testChannel, bad); err == nil {
		t.Error("non-list arguments decoded, want error")
	}
}
