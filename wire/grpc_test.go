package wire

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func startRemotePair(t *testing.T) (*RemoteServer, *RemoteClient) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := NewRemoteServer()
	go func() { _ = server.Serve(lis) }()
	t.Cleanup(server.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := DialRemote(ctx, lis.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	return server, client
}

func TestRemote_ClientToServerCall(t *testing.T) {
	server, client := startRemotePair(t)
	c := NewMessageCodec()
	server.SetHandler(testChannel, HandleCall(c, testChannel, func(_ context.Context, args []any) (any, error) {
		return args[0].(int64) + 1, nil
	}, true))

	msg, err := c.EncodeMessage([]any{int64(40)})
	if err != nil {
		t.Fatal(err)
	}
	reply, err := client.Send(context.Background(), testChannel, msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	v, err := c.DecodeReply(testChannel, reply, true, false)
	if err != nil {
		t.Fatalf("DecodeReply: %v", err)
	}
	if v != int64(41) {
		t.Errorf("result = %#v, want 41", v)
	}
}

func TestRemote_ServerToClientCall(t *testing.T) {
	server, client := startRemotePair(t)
	c := NewMessageCodec()
	client.SetHandler(testChannel, HandleCall(c, testChannel, func(_ context.Context, args []any) (any, error) {
		return "pong:" + args[0].(string), nil
	}, true))

	msg, err := c.EncodeMessage([]any{"ping"})
	if err != nil {
		t.Fatal(err)
	}

	// The server can only call back once the session is up; retry briefly.
	deadline := time.Now().Add(5 * time.Second)
	var reply []byte
	for {
		reply, err = server.Send(context.Background(), testChannel, msg)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	v, err := c.DecodeReply(testChannel, reply, true, false)
	if err != nil {
		t.Fatal(err)
	}
	if v != "pong:ping" {
		t.Errorf("result = %#v", v)
	}
}

func TestRemote_NoHandler(t *testing.T) {
	_, client := startRemotePair(t)
	_, err := client.Send(context.Background(), "missing.channel", nil)
	var ce *ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want ConnectionError", err)
	}
}

func TestRemote_SessionIdentifierPropagates(t *testing.T) {
	_, client := startRemotePair(t)
	if client.Session == "" {
		t.Error("client session identifier is empty")
	}
}

func TestRawCodec(t *testing.T) {
	var c rawCodec
	in := rawFrame{1, 2, 3}
	data, err := c.Marshal(&in)
	if err != nil {
		t.Fatal(err)
	}
	var out rawFrame
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if string(out) != string(in) {
		t.Errorf("round trip = %v, want %v", out, in)
	}
	if _, err := c.Marshal("not a frame"); err == nil {
		t.Error("marshal of a non-frame succeeded")
	}
}
