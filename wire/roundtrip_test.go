package wire

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
)

// End-to-end request and reply flows over an in-process endpoint pair,
// exercising the codec, envelope, and instance lifecycle together the way
// generated bindings drive them.

func TestRoundTrip_EchoInt(t *testing.T) {
	codec := NewMessageCodec()
	host, client := Pair()
	channel := "dev.flutter.pigeon.example.ExampleHostApi.echoInt"

	host.SetHandler(channel, HandleCall(codec, channel, func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("echoInt expects one argument")
		}
		return args[0], nil
	}, true))

	message, err := codec.EncodeMessage([]any{int64(41)})
	if err != nil {
		t.Fatal(err)
	}
	reply, err := client.Send(context.Background(), channel, message)
	if err != nil {
		t.Fatal(err)
	}

	// The raw reply is the single-element success envelope.
	raw, err := codec.DecodeMessage(reply)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(raw, []any{int64(41)}) {
		t.Errorf("raw reply = %#v, want [41]", raw)
	}

	result, err := codec.DecodeReply(channel, reply, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if result != int64(41) {
		t.Errorf("result = %#v, want int64(41)", result)
	}
}

func TestRoundTrip_ThrowError(t *testing.T) {
	codec := NewMessageCodec()
	host, client := Pair()
	channel := "dev.flutter.pigeon.example.ExampleHostApi.throwError"

	host.SetHandler(channel, HandleCall(codec, channel, func(_ context.Context, _ []any) (any, error) {
		return nil, errors.New("deliberate failure")
	}, false))

	message, err := codec.EncodeMessage([]any{})
	if err != nil {
		t.Fatal(err)
	}
	reply, err := client.Send(context.Background(), channel, message)
	if err != nil {
		t.Fatal(err)
	}

	// The raw reply is the three-element failure envelope with the
	// generic code and a null details slot.
	raw, err := codec.DecodeMessage(reply)
	if err != nil {
		t.Fatal(err)
	}
	want := []any{CodeGeneric, "deliberate failure", nil}
	if !reflect.DeepEqual(raw, want) {
		t.Errorf("raw reply = %#v, want %#v", raw, want)
	}

	_, err = codec.DecodeReply(channel, reply, false, false)
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("DecodeReply error = %v, want RemoteError", err)
	}
	if remote.Code != CodeGeneric || remote.Message != "deliberate failure" {
		t.Errorf("remote error = %q %q", remote.Code, remote.Message)
	}
}

type wirePair struct {
	A *string
	B int64
}

func wirePairCodec(tb testing.TB) *MessageCodec {
	tb.Helper()
	return NewMessageCodec(CustomType{
		Tag: MinCustomTag,
		Encode: func(v any) ([]any, bool) {
			p, ok := v.(*wirePair)
			if !ok {
				return nil, false
			}
			var a any
			if p.A != nil {
				a = *p.A
			}
			return []any{a, p.B}, true
		},
		Decode: func(fields []any) (any, error) {
			if len(fields) != 2 {
				return nil, errors.New("wirePair: want 2 fields")
			}
			p := &wirePair{}
			if fields[0] != nil {
				s := fields[0].(string)
				p.A = &s
			}
			p.B = fields[1].(int64)
			return p, nil
		},
	})
}

func TestRoundTrip_ClassWithNullField(t *testing.T) {
	codec := wirePairCodec(t)
	host, client := Pair()
	channel := "dev.flutter.pigeon.example.ExampleHostApi.echoPair"

	host.SetHandler(channel, HandleCall(codec, channel, func(_ context.Context, args []any) (any, error) {
		p, ok := args[0].(*wirePair)
		if !ok {
			return nil, errors.New("echoPair expects a pair")
		}
		// Field order is the positional wire order: [a, b].
		if p.A != nil || p.B != 5 {
			return nil, errors.New("echoPair: unexpected field values")
		}
		return p, nil
	}, true))

	message, err := codec.EncodeMessage([]any{&wirePair{A: nil, B: 5}})
	if err != nil {
		t.Fatal(err)
	}
	reply, err := client.Send(context.Background(), channel, message)
	if err != nil {
		t.Fatal(err)
	}

	result, err := codec.DecodeReply(channel, reply, true, false)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := result.(*wirePair)
	if !ok {
		t.Fatalf("result = %#v, want *wirePair", result)
	}
	if p.A != nil {
		t.Errorf("A = %q, want nil", *p.A)
	}
	if p.B != 5 {
		t.Errorf("B = %d, want 5", p.B)
	}
}

func TestRoundTrip_ProxyReleaseNotifiesOnce(t *testing.T) {
	codec := NewMessageCodec()
	host, client := Pair()
	channel := "dev.flutter.pigeon.example.InstanceManager.removeStrongReference"

	var notified atomic.Int64
	client.SetHandler(channel, HandleCall(codec, channel, func(_ context.Context, args []any) (any, error) {
		if len(args) != 1 || args[0] != int64(RemoteIdentifierFloor+5) {
			return nil, errors.New("unexpected release payload")
		}
		notified.Add(1)
		return nil, nil
	}, false))

	manager := NewInstanceManager(func(identifier int64) {
		message, err := codec.EncodeMessage([]any{identifier})
		if err != nil {
			return
		}
		host.Send(context.Background(), channel, message)
	})

	instance := &struct{ name string }{name: "held"}
	if err := RegisterRemote(manager, instance, RemoteIdentifierFloor+5); err != nil {
		t.Fatal(err)
	}

	manager.RemoveWeakReference(RemoteIdentifierFloor + 5)
	manager.RemoveWeakReference(RemoteIdentifierFloor + 5)

	if got := notified.Load(); got != 1 {
		t.Errorf("release notifications = %d, want exactly 1", got)
	}
}
