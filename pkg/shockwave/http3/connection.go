package http3

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"
)

// Options configures a Connection. Configuration file/flag/env parsing is
// out of scope for this core (§1 Non-goals); callers build Options
// programmatically.
type Options struct {
	Logger        *slog.Logger
	Settings      *SettingsFrame
	ShutdownGrace time.Duration
	NewHandler    func() Handler
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Settings == nil {
		o.Settings = DefaultSettings()
	}
	if o.ShutdownGrace == 0 {
		o.ShutdownGrace = 5 * time.Second
	}
	return o
}

type handlerEntry struct {
	h     Handler
	state any
}

// Connection owns everything the Connection Loop touches: the stream
// registry, the H3 Machine Adapter, the Frame Dispatcher, the Response
// Serializer, the Child Supervisor, and the per-stream handler table.
// Exactly one goroutine, Run's caller, ever mutates this state,
// matching the single-task-per-connection design this core translates
// from an actor model into a Go event loop (§4.2).
type Connection struct {
	tr       Transport
	opts     Options
	logger   *slog.Logger
	reg      *registry
	m        *machine
	disp     *dispatcher
	resp     *responseSerializer
	children *childSupervisor
	handlers map[StreamRef]*handlerEntry

	// selfMsgs carries self-addressed stream messages (§4.7): arbitrary
	// out-of-band notices, including child-exit forwarding (§4.8), that
	// other goroutines deliver to a specific stream's handler without
	// ever touching Connection state themselves.
	selfMsgs chan selfMessage

	controlRef StreamRef
	encoderRef StreamRef
	decoderRef StreamRef
}

// selfMessage is one `{(self_pid, stream_ref), msg}` delivery (§4.2,
// §4.7): a message addressed back to the connection task for a specific
// stream, dispatched to that stream's handler via Info.
type selfMessage struct {
	Ref  StreamRef
	Info HandlerInfo
}

// NewConnection performs Connection Init (§4.1): it wraps tr, builds the
// adapter stack, and opens the three local-initiated critical unidi
// streams, writing each one's type byte before anything else so the peer
// can classify them the instant they're seen.
func NewConnection(ctx context.Context, tr Transport, opts Options) (*Connection, error) {
	opts = opts.withDefaults()

	m := newMachine(opts.Settings)
	reg := newRegistry()

	c := &Connection{
		tr:       tr,
		opts:     opts,
		logger:   opts.Logger,
		reg:      reg,
		m:        m,
		disp:     newDispatcher(reg, m),
		resp:     newResponseSerializer(tr, m.encoderView()),
		handlers: make(map[StreamRef]*handlerEntry),
		selfMsgs: make(chan selfMessage, 64),
	}
	c.children = newChildSupervisor(opts.ShutdownGrace, func(exit ChildExit) {
		c.selfMsgs <- selfMessage{Ref: exit.Ref, Info: HandlerInfo{Kind: "child_exit", Data: exit}}
	})

	if err := c.initLocalStreams(ctx); err != nil {
		return nil, &SocketError{Msg: "connection init", Cause: err}
	}
	return c, nil
}

func (c *Connection) initLocalStreams(ctx context.Context) error {
	control, err := c.tr.StartStream(ctx, true)
	if err != nil {
		return err
	}
	encoder, err := c.tr.StartStream(ctx, true)
	if err != nil {
		return err
	}
	decoder, err := c.tr.StartStream(ctx, true)
	if err != nil {
		return err
	}

	if err := c.tr.Send(control, appendVarInt([]byte{}, unidiTypeControl), false); err != nil {
		return err
	}
	if err := c.tr.Send(encoder, appendVarInt([]byte{}, unidiTypeEncoder), false); err != nil {
		return err
	}
	if err := c.tr.Send(decoder, appendVarInt([]byte{}, unidiTypeDecoder), false); err != nil {
		return err
	}

	settingsBytes := c.opts.Settings.appendTo(nil)
	if err := c.tr.Send(control, settingsBytes, false); err != nil {
		return err
	}

	c.controlRef, c.encoderRef, c.decoderRef = control, encoder, decoder
	c.m.InitUnidiLocalStreams(control, encoder, decoder)
	return nil
}

// Run is the Connection Loop (§4.2): it blocks consuming transport
// events until the connection ends. It returns nil only when the
// transport closes its event channel; an EventClosed event or a cancelled
// ctx ends the loop through terminateConnection with a Stop cause, and
// that error is returned.
func (c *Connection) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return c.terminateConnection(ctx, &Stop{Reason: "context cancelled"})
		case ev, ok := <-c.tr.Events():
			if !ok {
				return nil
			}
			if err := c.handleEvent(ctx, ev); err != nil {
				return c.terminateConnection(ctx, err)
			}
		case msg := <-c.selfMsgs:
			c.handleSelfMessage(ctx, msg)
		}
	}
}

func (c *Connection) handleEvent(ctx context.Context, ev TransportEvent) error {
	switch ev.Kind {
	case EventNewStream:
		if ev.Unidirectional {
			c.reg.put(newUnidiStream(ev.Ref))
		} else {
			c.reg.put(newBidiStream(ev.Ref))
			c.m.InitBidiStream(ev.Ref)
		}
		return nil

	case EventData:
		events := c.disp.OnData(ev.Ref, ev.Data, ev.Fin)
		return c.handleDispatchEvents(ctx, ev.Ref, events)

	case EventStreamClosed:
		if cerr := c.terminateStream(ev.Ref, ShutdownBrutalKill, nil); cerr != nil {
			return cerr
		}
		return nil

	case EventPeerSendShutdown, EventSendShutdownComplete, EventTransportShutdown:
		// §Design Notes: these transport signals are accepted but have no
		// effect in this core; graceful half-close sequencing is future
		// work, not implemented here.
		return nil

	case EventClosed:
		return &Stop{Reason: "transport closed"}

	default:
		return nil
	}
}

func (c *Connection) handleDispatchEvents(ctx context.Context, ref StreamRef, events []DispatchEvent) error {
	for _, e := range events {
		switch {
		case e.Unknown:
			if c.reg.isLingering(ref) {
				continue
			}
			c.logger.Warn("data for unknown stream", "ref", ref)

		case e.ConnErr != nil:
			return e.ConnErr

		case e.StreamErr != nil:
			c.resetStream(ref, e.StreamErr.Code)

		case e.AbortReceive != nil:
			// §4.3: an unrecognized unidi stream type aborts only the
			// receive side; the stream stays registered (Status is
			// already Discard) so later bytes are dropped without
			// rewarning instead of being torn down like a StreamErr.
			_ = c.tr.ShutdownStream(ref, e.AbortReceive.Code)

		case e.GoAway != nil:
			// §12 supplemented feature: this core does not negotiate a
			// graceful drain window, it terminates on GOAWAY.
			return &Stop{Reason: "peer sent GOAWAY"}

		case e.PeerSettings != nil:
			c.logger.Debug("peer settings received", "qpack_max_table", mustGet(e.PeerSettings, SettingQPackMaxTableCapacity))

		case e.Request != nil:
			e.Request.StreamID = ref
			e.Request.Transport = "quic"
			e.Request.Peer = c.tr.Peername()
			e.Request.Local = c.tr.Sockname()
			e.Request.Version = "HTTP/3"
			c.startHandler(ctx, ref, e.Request)

		case e.Trailers != nil:
			// §Design Notes: trailer propagation to the handler is
			// stubbed; trailers are accepted off the wire and discarded.

		case e.DataChunk != nil || e.DataFin:
			c.deliverData(ctx, ref, e.DataChunk, e.DataFin)
		}
	}
	return nil
}

func mustGet(s *SettingsFrame, id uint64) uint64 {
	v, _ := s.Get(id)
	return v
}

func (c *Connection) startHandler(ctx context.Context, ref StreamRef, req *Request) {
	h := c.opts.NewHandler()
	cmds, state, err := h.Init(ctx, ref, req)
	if err != nil {
		c.logger.Error(h.MakeErrorLog(state, err))
		c.resetStream(ref, ErrInternalError)
		return
	}
	c.handlers[ref] = &handlerEntry{h: h, state: state}
	c.applyCommands(ref, cmds)
}

func (c *Connection) deliverData(ctx context.Context, ref StreamRef, chunk []byte, fin bool) {
	entry, ok := c.handlers[ref]
	if !ok {
		return
	}
	cmds, state, err := entry.h.Data(ctx, entry.state, chunk, fin)
	entry.state = state
	if err != nil {
		c.logger.Error(entry.h.MakeErrorLog(state, err))
		c.resetStream(ref, ErrInternalError)
		return
	}
	c.applyCommands(ref, cmds)
}

// handleSelfMessage dispatches a self-addressed stream message (§4.2,
// §4.7) to its owning stream's handler. A child exit forwarded here
// (§4.8's Known(Some stream_ref) case) is indistinguishable from any
// other info message once it reaches this point.
func (c *Connection) handleSelfMessage(ctx context.Context, msg selfMessage) {
	entry, ok := c.handlers[msg.Ref]
	if !ok {
		if c.reg.isLingering(msg.Ref) {
			return
		}
		c.logger.Warn("self-addressed message for unknown stream", "ref", msg.Ref, "kind", msg.Info.Kind)
		return
	}
	cmds, state, err := entry.h.Info(ctx, entry.state, msg.Info)
	entry.state = state
	if err != nil {
		c.logger.Error(entry.h.MakeErrorLog(state, err))
		c.resetStream(msg.Ref, ErrInternalError)
		return
	}
	c.applyCommands(msg.Ref, cmds)
}

func (c *Connection) applyCommands(ref StreamRef, cmds []Command) {
	for _, cmd := range cmds {
		if spawn, ok := cmd.(Spawn); ok {
			c.children.Spawn(context.Background(), ref, spawn.Name, func(context.Context) error { return spawn.Run() })
			continue
		}
		if err := c.resp.apply(ref, cmd, c.logger); err != nil {
			c.logger.Error("failed to apply response command", "ref", ref, "err", err)
			c.resetStream(ref, ErrInternalError)
			return
		}
	}
}

// resetStream performs Terminate Stream (§4.9 Reset path): it resets the
// transport stream, kills its children, tells its handler why, and drops
// it from the registry into the lingering list.
func (c *Connection) resetStream(ref StreamRef, code ErrorCode) {
	_ = c.tr.ShutdownStream(ref, code)
	c.terminateStream(ref, ShutdownTimeout, &StreamError{Code: code, Msg: "stream reset"})
}

// terminateStream kills ref's children, terminates its handler with
// reason, and drops its protocol state and registry entry. It returns the
// ConnectionError CloseStream reports when ref is a critical stream.
func (c *Connection) terminateStream(ref StreamRef, policy ShutdownPolicy, reason error) *ConnectionError {
	if err := c.children.Terminate(ref, policy); err != nil {
		c.logger.Warn("child task error during stream termination", "ref", ref, "err", err)
	}
	if entry, ok := c.handlers[ref]; ok {
		entry.h.Terminate(context.Background(), entry.state, reason)
		delete(c.handlers, ref)
	}
	cerr := c.m.CloseStream(ref)
	c.reg.remove(ref)
	return cerr
}

// terminateConnection performs Terminate Connection (§4.9): every
// stream's children are killed, the transport is shut down with the
// error's mapped code, and child-teardown failures are aggregated rather
// than discarded.
func (c *Connection) terminateConnection(ctx context.Context, cause error) error {
	var result *multierror.Error
	if cause != nil {
		result = multierror.Append(result, cause)
	}

	for _, err := range c.children.TerminateAll(ShutdownTimeout) {
		result = multierror.Append(result, err)
	}
	for ref, entry := range c.handlers {
		entry.h.Terminate(ctx, entry.state, cause)
		delete(c.handlers, ref)
	}

	code := ErrNoError
	reason := ""
	if cause != nil {
		code = errorToCode(cause)
		reason = cause.Error()
	}
	if err := c.tr.ShutdownConnection(code, reason); err != nil {
		result = multierror.Append(result, err)
	}
	if err := c.tr.Close(); err != nil {
		result = multierror.Append(result, err)
	}

	if result == nil {
		return nil
	}
	return result.ErrorOrNil()
}
