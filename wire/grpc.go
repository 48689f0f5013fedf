package wire

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// The remote messenger tunnels channel messages over a single
// bidirectional gRPC stream. Frames are CBOR maps rather than protobuf so
// the stream stays schema-free; the gRPC codec below passes the encoded
// bytes through untouched.

const (
	messengerService = "loom.wire.Messenger"
	messengerMethod  = "/loom.wire.Messenger/Session"
	sessionMetadata  = "loom-session"
)

const (
	frameCall uint8 = iota + 1
	frameReply
	frameNoHandler
)

type frame struct {
	Kind    uint8  `cbor:"1,keyasint"`
	Seq     uint64 `cbor:"2,keyasint"`
	Channel string `cbor:"3,keyasint,omitempty"`
	Payload []byte `cbor:"4,keyasint,omitempty"`
}

// rawFrame is the message type the pass-through codec recognizes.
type rawFrame []byte

type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	f, ok := v.(*rawFrame)
	if !ok {
		return nil, fmt.Errorf("wire: raw codec: cannot marshal %T", v)
	}
	return *f, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	f, ok := v.(*rawFrame)
	if !ok {
		return fmt.Errorf("wire: raw codec: cannot unmarshal into %T", v)
	}
	*f = append((*f)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "loom-raw" }

// frameStream is the send/receive surface shared by both gRPC stream
// halves.
type frameStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// remote is one end of a frame session. It implements BinaryMessenger:
// outgoing Sends become call frames matched to replies by sequence
// number, and incoming call frames dispatch to the handler table.
type remote struct {
	table   *handlerTable
	stream  frameStream
	ctx     context.Context
	session string

	seq     atomic.Uint64
	sendMu  sync.Mutex
	pending struct {
		sync.Mutex
		m map[uint64]chan *frame
	}

	done    chan struct{}
	failed  sync.Once
	lastErr error
}

func newRemote(table *handlerTable, stream frameStream, ctx context.Context, session string) *remote {
	r := &remote{
		table:   table,
		stream:  stream,
		ctx:     ctx,
		session: session,
		done:    make(chan struct{}),
	}
	r.pending.m = make(map[uint64]chan *frame)
	return r
}

func (r *remote) SetHandler(channel string, h Handler) {
	r.table.set(channel, h)
}

func (r *remote) Send(ctx context.Context, channel string, message []byte) ([]byte, error) {
	seq := r.seq.Add(1)
	replyCh := make(chan *frame, 1)
	r.pending.Lock()
	r.pending.m[seq] = replyCh
	r.pending.Unlock()

	err := r.sendFrame(&frame{Kind: frameCall, Seq: seq, Channel: channel, Payload: message})
	if err != nil {
		r.dropPending(seq)
		return nil, &ConnectionError{Channel: channel, Reason: fmt.Sprintf("send failed: %v", err)}
	}

	select {
	case f := <-replyCh:
		if f.Kind == frameNoHandler {
			return nil, &ConnectionError{Channel: channel, Reason: "no handler registered"}
		}
		return f.Payload, nil
	case <-ctx.Done():
		r.dropPending(seq)
		return nil, ctx.Err()
	case <-r.done:
		return nil, &ConnectionError{Channel: channel, Reason: fmt.Sprintf("session closed: %v", r.lastErr)}
	}
}

func (r *remote) sendFrame(f *frame) error {
	data, err := cbor.Marshal(f)
	if err != nil {
		return err
	}
	raw := rawFrame(data)
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	return r.stream.SendMsg(&raw)
}

func (r *remote) dropPending(seq uint64) {
	r.pending.Lock()
	delete(r.pending.m, seq)
	r.pending.Unlock()
}

// readLoop pumps the stream until it fails, dispatching calls and
// routing replies. It blocks, so both ends run it on its own goroutine
// or as the stream handler body.
func (r *remote) readLoop() error {
	for {
		var raw rawFrame
		if err := r.stream.RecvMsg(&raw); err != nil {
			r.fail(err)
			return err
		}
		var f frame
		if err := cbor.Unmarshal(raw, &f); err != nil {
			err = fmt.Errorf("wire: session %s: bad frame: %w", r.session, err)
			r.fail(err)
			return err
		}
		switch f.Kind {
		case frameCall:
			go r.dispatch(&f)
		case frameReply, frameNoHandler:
			r.pending.Lock()
			ch := r.pending.m[f.Seq]
			delete(r.pending.m, f.Seq)
			r.pending.Unlock()
			if ch != nil {
				ch <- &f
			}
		}
	}
}

func (r *remote) dispatch(call *frame) {
	h := r.table.get(call.Channel)
	if h == nil {
		_ = r.sendFrame(&frame{Kind: frameNoHandler, Seq: call.Seq})
		return
	}
	reply := h(r.ctx, call.Payload)
	_ = r.sendFrame(&frame{Kind: frameReply, Seq: call.Seq, Payload: reply})
}

func (r *remote) fail(err error) {
	r.failed.Do(func() {
		r.lastErr = err
		close(r.done)
	})
}

// ---

// RemoteServer accepts frame sessions from the other address space.
// Handlers installed on the server serve every session; Send goes to the
// most recent session, matching the one-peer deployment shape.
type RemoteServer struct {
	server *grpc.Server
	table  *handlerTable

	mu      sync.RWMutex
	current *remote
}

// NewRemoteServer builds a server ready to Serve on a listener.
func NewRemoteServer() *RemoteServer {
	s := &RemoteServer{
		server: grpc.NewServer(grpc.ForceServerCodec(rawCodec{})),
		table:  newHandlerTable(),
	}
	s.server.RegisterService(&messengerServiceDesc, s)
	return s
}

// Serve accepts sessions on lis until Stop.
func (s *RemoteServer) Serve(lis net.Listener) error {
	return s.server.Serve(lis)
}

// Stop tears down the server and every live session.
func (s *RemoteServer) Stop() {
	s.server.Stop()
}

func (s *RemoteServer) SetHandler(channel string, h Handler) {
	s.table.set(channel, h)
}

func (s *RemoteServer) Send(ctx context.Context, channel string, message []byte) ([]byte, error) {
	s.mu.RLock()
	r := s.current
	s.mu.RUnlock()
	if r == nil {
		return nil, &ConnectionError{Channel: channel, Reason: "not connected"}
	}
	return r.Send(ctx, channel, message)
}

func (s *RemoteServer) handleSession(stream grpc.ServerStream) error {
	ctx := stream.Context()
	session := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(sessionMetadata); len(v) > 0 {
			session = v[0]
		}
	}
	if session == "" {
		session = uuid.NewString()
	}

	r := newRemote(s.table, stream, ctx, session)
	s.mu.Lock()
	s.current = r
	s.mu.Unlock()

	err := r.readLoop()

	s.mu.Lock()
	if s.current == r {
		s.current = nil
	}
	s.mu.Unlock()
	return err
}

var messengerServiceDesc = grpc.ServiceDesc{
	ServiceName: messengerService,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: "Session",
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(*RemoteServer).handleSession(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "loom/wire",
}

// RemoteClient is the dialing end of a frame session.
type RemoteClient struct {
	conn    *grpc.ClientConn
	remote  *remote
	Session string
}

// DialRemote connects to a RemoteServer at target and opens a session.
// The returned client is a BinaryMessenger; Close tears the session down.
func DialRemote(ctx context.Context, target string) (*RemoteClient, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("wire: dial %s: %w", target, err)
	}

	session := uuid.NewString()
	streamCtx := metadata.AppendToOutgoingContext(context.WithoutCancel(ctx), sessionMetadata, session)
	desc := &grpc.StreamDesc{
		StreamName:    "Session",
		ServerStreams: true,
		ClientStreams: true,
	}
	stream, err := conn.NewStream(streamCtx, desc, messengerMethod)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("wire: open session: %w", err)
	}

	r := newRemote(newHandlerTable(), stream, streamCtx, session)
	go func() { _ = r.readLoop() }()

	return &RemoteClient{conn: conn, remote: r, Session: session}, nil
}

func (c *RemoteClient) Send(ctx context.Context, channel string, message []byte) ([]byte, error) {
	return c.remote.Send(ctx, channel, message)
}

func (c *RemoteClient) SetHandler(channel string, h Handler) {
	c.remote.SetHandler(channel, h)
}

// Close ends the session and releases the connection.
func (c *RemoteClient) Close() error {
	return c.conn.Close()
}
