package acp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// NotificationHandler receives every agent notification.
type NotificationHandler func(method string, params json.RawMessage)

// RequestHandler answers a request the agent sends back into the
// orchestrator. Returning ErrUnhandled passes the request to the next
// registered handler; any other error becomes a JSON-RPC error response
// (with the code from a *HandlerError, or internal error otherwise).
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (interface{}, error)

// Call is the completion handle for one outstanding request. It is resolved
// or failed exactly once: by a matching response, a matching error, a write
// failure, or subprocess termination.
type Call struct {
	client *Client
	result json.RawMessage
	err    error
	done   chan struct{}
	id     int64
	once   sync.Once
}

// ID returns the request id this call is waiting on.
func (c *Call) ID() int64 { return c.id }

// Done is closed once the call is resolved or failed.
func (c *Call) Done() <-chan struct{} { return c.done }

// Wait blocks until the call completes or ctx is done. On ctx expiry the
// pending entry is dropped so a late response is discarded silently.
func (c *Call) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		c.client.dropPending(c.id)
		return nil, ctx.Err()
	}
}

func (c *Call) resolve(result json.RawMessage) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

func (c *Call) fail(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Client owns one ACP agent subprocess. It serializes writes, runs a single
// reader worker that drains subprocess stdout, correlates responses to
// outstanding calls by id, and dispatches notifications and inbound
// requests to registered handlers.
type Client struct {
	pending       map[int64]*Call
	process       *processManager
	state         *clientStateManager
	idGen         *idGenerator
	log           *slog.Logger
	notifHandlers []NotificationHandler
	reqHandlers   []RequestHandler
	config        ClientConfig
	eg            *errgroup.Group
	stopped       chan struct{}
	mu            sync.Mutex
}

// NewClient creates a client with options. The client does nothing until
// Start.
func NewClient(opts ...ClientOption) *Client {
	config := defaultClientConfig()
	for _, opt := range opts {
		opt(&config)
	}

	log := config.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		config:  config,
		state:   newClientStateManager(),
		idGen:   &idGenerator{},
		pending: make(map[int64]*Call),
		stopped: make(chan struct{}),
		log:     log,
	}
}

// State returns the current client state.
func (c *Client) State() ClientState {
	return c.state.Current()
}

// Pid returns the subprocess pid, or 0 before Start. The adapter's
// signal-safe kill path stores this rather than reaching into the client.
func (c *Client) Pid() int {
	if c.process == nil {
		return 0
	}
	return c.process.Pid()
}

// OnNotification registers a handler invoked for every agent notification.
func (c *Client) OnNotification(h NotificationHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifHandlers = append(c.notifHandlers, h)
}

// OnRequest registers a handler for requests the agent sends back into the
// orchestrator. Handlers run in registration order; the first one to
// produce a result (or a non-ErrUnhandled error) wins.
func (c *Client) OnRequest(h RequestHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqHandlers = append(c.reqHandlers, h)
}

// Start spawns the subprocess and launches the reader worker. It does not
// perform the protocol handshake; that is the adapter's job.
func (c *Client) Start(ctx context.Context) error {
	if err := c.state.SetRunning(); err != nil {
		return err
	}

	c.process = newProcessManager(c.config)
	if err := c.process.Start(ctx); err != nil {
		c.state.SetStopped()
		return err
	}

	if c.config.StderrHandler != nil {
		c.process.startStderrReader(c.config.StderrHandler)
	}

	c.eg, _ = errgroup.WithContext(context.Background())
	c.eg.Go(func() error {
		c.readLoop()
		return nil
	})

	return nil
}

// SendRequest allocates an id, registers a completion handle, and schedules
// the write off the caller's goroutine so a slow or failed write never
// blocks the caller. A write failure fails that one handle immediately.
func (c *Client) SendRequest(method string, params interface{}) (*Call, error) {
	if c.state.Current() != ClientStateRunning {
		return nil, ErrNotStarted
	}

	id := c.idGen.Next()
	req, err := newRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	call := &Call{client: c, id: id, done: make(chan struct{})}
	c.mu.Lock()
	c.pending[id] = call
	c.mu.Unlock()

	go func() {
		if err := c.process.WriteJSON(req); err != nil {
			c.dropPending(id)
			call.fail(&ProcessError{Message: fmt.Sprintf("failed to write request %q", method), Cause: err})
		}
	}()

	return call, nil
}

// Call sends a request and waits for its result.
func (c *Client) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	call, err := c.SendRequest(method, params)
	if err != nil {
		return nil, err
	}
	return call.Wait(ctx)
}

// SendNotification writes a fire-and-forget notification; no handle is
// registered and no reply is expected.
func (c *Client) SendNotification(method string, params interface{}) error {
	if c.state.Current() != ClientStateRunning {
		return ErrNotStarted
	}
	notif, err := newNotification(method, params)
	if err != nil {
		return err
	}
	return c.process.WriteJSON(notif)
}

// Stop is idempotent. It terminates the subprocess with bounded grace
// periods, waits (bounded) for the reader worker, then fails any remaining
// pending calls so no caller blocks indefinitely.
func (c *Client) Stop() error {
	if !c.state.SetStopped() {
		return nil
	}
	close(c.stopped)

	if c.process != nil {
		c.process.Stop()
	}

	// Reader unblocks when the subprocess's stdout closes; the kill
	// escalation in process.Stop guarantees that happens.
	if c.eg != nil {
		waited := make(chan struct{})
		go func() {
			_ = c.eg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(2 * time.Second):
			c.log.Warn("reader worker did not exit within deadline")
		}
	}

	c.failAllPending(ErrSubprocessTerminated)
	return nil
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// failAllPending fails every outstanding call. Each affected call fails
// individually; none is silently dropped.
func (c *Client) failAllPending(err error) {
	c.mu.Lock()
	calls := make([]*Call, 0, len(c.pending))
	for _, call := range c.pending {
		calls = append(calls, call)
	}
	c.pending = make(map[int64]*Call)
	c.mu.Unlock()

	for _, call := range calls {
		call.fail(err)
	}
}

// readLoop is the single consumer of subprocess stdout. It exits on EOF,
// read error, or client stop; on exit every still-pending call is failed so
// no caller of SendRequest blocks forever.
func (c *Client) readLoop() {
	defer c.failAllPending(ErrSubprocessTerminated)

	for {
		select {
		case <-c.stopped:
			return
		default:
		}

		line, err := c.process.ReadLine()
		if err != nil {
			if err != io.EOF {
				c.log.Debug("reader worker exiting", "error", err)
			}
			return
		}
		if len(line) == 0 {
			continue
		}

		c.handleLine(line)
	}
}

// handleLine classifies and routes one line of agent output. A malformed
// line is logged and skipped; the worker continues.
func (c *Client) handleLine(line []byte) {
	msg, err := parseMessage(line)
	if err != nil {
		c.log.Warn("skipping malformed message", "error", err)
		return
	}

	switch msg.Kind {
	case kindResponse:
		c.resolvePending(msg.ID, msg.Result, nil)
	case kindError:
		c.resolvePending(msg.ID, nil, &RPCError{Code: msg.Error.Code, Message: msg.Error.Message})
	case kindNotification:
		c.dispatchNotification(msg.Method, msg.Params)
	case kindRequest:
		c.dispatchRequest(msg.ID, msg.Method, msg.Params)
	}
}

// resolvePending pops the matching call by id and resolves or fails it. An
// id with no match is dropped silently (late or duplicate response).
func (c *Client) resolvePending(id int64, result json.RawMessage, rpcErr error) {
	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug("dropping response with no pending call", "id", id)
		return
	}

	if rpcErr != nil {
		call.fail(rpcErr)
	} else {
		call.resolve(result)
	}
}

// dispatchNotification invokes every registered notification handler. A
// handler fault is caught and logged; it never aborts the worker.
func (c *Client) dispatchNotification(method string, params json.RawMessage) {
	c.mu.Lock()
	handlers := make([]NotificationHandler, len(c.notifHandlers))
	copy(handlers, c.notifHandlers)
	c.mu.Unlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.log.Warn("notification handler fault", "method", method, "panic", r)
				}
			}()
			h(method, params)
		}()
	}
}

// dispatchRequest routes an agent request through registered handlers in
// order; the first to produce a result wins and its result (or error shape)
// is written back. A handler fault produces an internal-error response.
func (c *Client) dispatchRequest(id int64, method string, params json.RawMessage) {
	c.mu.Lock()
	handlers := make([]RequestHandler, len(c.reqHandlers))
	copy(handlers, c.reqHandlers)
	c.mu.Unlock()

	for _, h := range handlers {
		result, err := c.invokeRequestHandler(h, method, params)
		if err == ErrUnhandled {
			continue
		}
		if err != nil {
			if he, ok := err.(*HandlerError); ok {
				c.writeErrorResponse(id, he.Code, he.Message)
			} else {
				c.writeErrorResponse(id, ErrCodeInternalError, err.Error())
			}
			return
		}
		c.writeResponse(id, result)
		return
	}

	c.writeErrorResponse(id, ErrCodeMethodNotFound, "unknown method: "+method)
}

func (c *Client) invokeRequestHandler(h RequestHandler, method string, params json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Warn("request handler fault", "method", method, "panic", r)
			result, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(context.Background(), method, params)
}

func (c *Client) writeResponse(id int64, result interface{}) {
	resp, err := newResponse(id, result)
	if err != nil {
		c.writeErrorResponse(id, ErrCodeInternalError, err.Error())
		return
	}
	if err := c.process.WriteJSON(resp); err != nil {
		c.log.Warn("failed to write response", "id", id, "error", err)
	}
}

func (c *Client) writeErrorResponse(id int64, code int, message string) {
	if err := c.process.WriteJSON(newErrorResponse(id, code, message)); err != nil {
		c.log.Warn("failed to write error response", "id", id, "error", err)
	}
}
