package wire

import (
	"context"
	"fmt"
	"sync"
)

// Handler serves one channel. It receives the raw argument bytes and
// returns the raw reply bytes, already wrapped in an envelope.
type Handler func(ctx context.Context, message []byte) []byte

// BinaryMessenger moves raw messages between the two sides of the
// barrier. Send delivers to the channel's handler on the other side and
// returns its reply, or a ConnectionError when no handler is registered.
type BinaryMessenger interface {
	Send(ctx context.Context, channel string, message []byte) ([]byte, error)
	SetHandler(channel string, handler Handler)
}

// HandleCall wraps the per-method dispatch shared by generated handlers:
// decode the argument list, run the body, and fold the outcome, including
// a panic in user code, into a reply envelope.
func HandleCall(c *MessageCodec, channel string, body func(ctx context.Context, args []any) (any, error), hasResult bool) Handler {
	return func(ctx context.Context, message []byte) []byte {
		reply, err := func() (out []byte, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = &RemoteError{Code: CodeGeneric, Message: fmt.Sprint(r)}
				}
			}()
			args, err := c.DecodeArguments(channel, message)
			if err != nil {
				return nil, err
			}
			result, err := body(ctx, args)
			if err != nil {
				return nil, err
			}
			if !hasResult {
				return c.EncodeVoidSuccess()
			}
			return c.EncodeSuccess(result)
		}()
		if err != nil {
			reply, err = c.EncodeError(err)
			if err != nil {
				reply, _ = c.EncodeError(&RemoteError{Code: CodeGeneric, Message: "unencodable error"})
			}
		}
		return reply
	}
}

// handlerTable is the channel registry shared by messenger endpoints.
// Setting a nil handler removes the channel; setting a non-nil handler
// replaces any previous one atomically.
type handlerTable struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newHandlerTable() *handlerTable {
	return &handlerTable{handlers: make(map[string]Handler)}
}

func (t *handlerTable) set(channel string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == nil {
		delete(t.handlers, channel)
		return
	}
	t.handlers[channel] = h
}

func (t *handlerTable) get(channel string) Handler {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.handlers[channel]
}

// endpoint is one side of an in-process messenger pair.
type endpoint struct {
	table *handlerTable
	peer  *endpoint
}

// Pair builds two connected in-process messengers. A Send on one side is
// served by the handler registered on the other. Both host and client
// bindings of the same contract can run inside a single test this way.
func Pair() (BinaryMessenger, BinaryMessenger) {
	a := &endpoint{table: newHandlerTable()}
	b := &endpoint{table: newHandlerTable()}
	a.peer = b
	b.peer = a
	return a, b
}

func (e *endpoint) SetHandler(channel string, h Handler) {
	e.table.set(channel, h)
}

func (e *endpoint) Send(ctx context.Context, channel string, message []byte) ([]byte, error) {
	h := e.peer.table.get(channel)
	if h == nil {
		return nil, &ConnectionError{Channel: channel, Reason: "no handler registered"}
	}
	replyCh := make(chan []byte, 1)
	go func() {
		replyCh <- h(ctx, message)
	}()
	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
