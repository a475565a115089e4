package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// RemoteError is an error reported by the server's handler. Code carries the
// server-side error class so callers can map it back to a sentinel.
type RemoteError struct {
	Method  string
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpc %s: %s", e.Method, e.Message)
}

// Client is a lightweight JSON-over-TCP RPC client. The connection is dialled
// lazily and re-established after any transport error, so a Client can be
// created before its peer is up.
type Client struct {
	addr        string
	dialTimeout time.Duration

	mu      sync.Mutex
	conn    net.Conn
	encoder *json.Encoder
	decoder *json.Decoder
	nextID  atomic.Int64
}

// NewClient returns a Client for addr without connecting.
func NewClient(addr string, dialTimeout time.Duration) *Client {
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Client{addr: addr, dialTimeout: dialTimeout}
}

// Dial connects to an RPC server at the given address.
func Dial(addr string) (*Client, error) {
	c := NewClient(addr, 0)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: c.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", c.addr, err)
	}
	c.conn = conn
	c.encoder = json.NewEncoder(conn)
	c.decoder = json.NewDecoder(conn)
	return nil
}

func (c *Client) resetLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.encoder, c.decoder = nil, nil, nil
}

// Call invokes the named RPC method without a deadline.
func (c *Client) Call(method string, params any, result any) error {
	return c.CallContext(context.Background(), method, params, result)
}

// CallContext invokes the named RPC method with params and decodes the
// response into result. Calls on one Client are serialised. The context
// deadline is applied to the connection; cancellation closes it.
func (c *Client) CallContext(ctx context.Context, method string, params any, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.connectLocked(ctx); err != nil {
		return err
	}
	conn := c.conn

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := conn.SetDeadline(deadline); err != nil {
		c.resetLocked()
		return fmt.Errorf("setting deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	req := request{
		ID:     strconv.FormatInt(c.nextID.Add(1), 10),
		Method: method,
		Params: raw,
	}
	if err := c.encoder.Encode(req); err != nil {
		c.resetLocked()
		return c.transportErr(ctx, "sending request", err)
	}

	var resp reply
	if err := c.decoder.Decode(&resp); err != nil {
		c.resetLocked()
		return c.transportErr(ctx, "reading response", err)
	}
	if resp.ID != req.ID {
		c.resetLocked()
		return fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	if resp.Error != "" {
		return &RemoteError{Method: method, Code: resp.Code, Message: resp.Error}
	}
	if result != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, result); err != nil {
			return fmt.Errorf("unmarshaling into result: %w", err)
		}
	}
	return nil
}

func (c *Client) transportErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%s: %w", op, context.DeadlineExceeded)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Close closes the underlying TCP connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}
