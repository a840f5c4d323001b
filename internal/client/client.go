// Package client is the Go client for the hearth session protocol:
// one TLS connection, correlation-id matched responses, and
// subscription events dispatched to per-subscription handlers.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/golang/glog"

	"github.com/hearthgrid/hearth/api"
)

// ErrClosed reports a call on a connection that has been closed, either
// by Close or because the server went away.
var ErrClosed = errors.New("client connection closed")

// EventHandler receives one batched changeset for a subscription. It
// runs on the client's dispatch goroutine, so it may issue further
// client calls but should not block indefinitely.
type EventHandler func(changes []api.PathValue)

// TLSConfig builds the client side of the mutual-TLS handshake.
func TLSConfig(certFile, keyFile, caFile, serverName string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client keypair: %w", err)
	}
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read ca chain: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("ca chain %s holds no certificates", caFile)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Client is safe for concurrent use; each in-flight request owns a
// response channel keyed by its correlation id.
type Client struct {
	conn net.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *api.ServerResponse
	closed  bool

	events  chan api.SubscriptionEvent
	control chan func()
	done    chan struct{}

	// Owned by the dispatch goroutine; touched elsewhere only through
	// control closures. Orphans hold events that raced ahead of their
	// subscribe response.
	handlers map[uint64]EventHandler
	orphans  map[uint64][]api.SubscriptionEvent
}

// orphanLimit bounds buffered events per not-yet-registered
// subscription.
const orphanLimit = 16

// Dial connects to addr over TLS and starts the read loop.
func Dial(addr string, tlsConf *tls.Config) (*Client, error) {
	conn, err := tls.Dial("tcp", addr, tlsConf)
	if err != nil {
		return nil, err
	}
	return NewClient(conn), nil
}

// NewClient wraps an established connection. Tests use it with
// net.Pipe; production code goes through Dial.
func NewClient(conn net.Conn) *Client {
	c := &Client{
		conn:     conn,
		pending:  make(map[uint64]chan *api.ServerResponse),
		events:   make(chan api.SubscriptionEvent, 64),
		control:  make(chan func(), 16),
		done:     make(chan struct{}),
		handlers: make(map[uint64]EventHandler),
		orphans:  make(map[uint64][]api.SubscriptionEvent),
	}
	go c.readLoop()
	go c.dispatchEvents()
	return c
}

// Close tears the connection down and fails every in-flight call.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		var msg api.ServerMessage
		if err := api.ReadFrame(c.conn, &msg); err != nil {
			c.failPending()
			return
		}
		switch {
		case msg.Response != nil:
			c.mu.Lock()
			ch, ok := c.pending[msg.Response.ID]
			if ok {
				delete(c.pending, msg.Response.ID)
			}
			c.mu.Unlock()
			if ok {
				ch <- msg.Response
			}
		case msg.Event != nil:
			select {
			case c.events <- *msg.Event:
			case <-c.done:
				return
			}
		}
	}
}

// dispatchEvents runs handlers off the read loop so a handler can make
// further client calls without deadlocking the response path. Being the
// sole owner of the handler and orphan maps, it needs no locking and
// delivers each subscription's events in arrival order.
func (c *Client) dispatchEvents() {
	for {
		select {
		case ev := <-c.events:
			if handler, ok := c.handlers[ev.SubscriptionID]; ok {
				handler(ev.Changes)
				continue
			}
			// The subscribe response is still in flight; hold the
			// event until the handler lands.
			if len(c.orphans[ev.SubscriptionID]) >= orphanLimit {
				glog.Warningf("dropping event for unknown subscription %d", ev.SubscriptionID)
				continue
			}
			c.orphans[ev.SubscriptionID] = append(c.orphans[ev.SubscriptionID], ev)
		case fn := <-c.control:
			fn()
		case <-c.done:
			return
		}
	}
}

// runControl hands fn to the dispatch goroutine. The channel buffer
// lets a handler already running on that goroutine subscribe or
// unsubscribe without deadlocking on its own dispatcher.
func (c *Client) runControl(fn func()) {
	select {
	case c.control <- fn:
	case <-c.done:
	}
}

func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
}

// call sends one request and waits for its response or ctx expiry.
func (c *Client) call(ctx context.Context, req *api.ClientRequest) (*api.ServerResponse, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	req.ID = c.nextID
	ch := make(chan *api.ServerResponse, 1)
	c.pending[req.ID] = ch
	c.mu.Unlock()

	c.writeMu.Lock()
	err := api.WriteFrame(c.conn, req)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if resp.Error != nil {
			return nil, &api.RemoteError{Name: resp.Error.Name, Context: resp.Error.Context}
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Ping round-trips data through the server.
func (c *Client) Ping(ctx context.Context, data string) (string, error) {
	resp, err := c.call(ctx, &api.ClientRequest{Ping: &api.PingRequest{Data: data}})
	if err != nil {
		return "", err
	}
	if resp.Pong == nil {
		return "", fmt.Errorf("%w: response carries no pong", ErrProtocol)
	}
	return resp.Pong.Data, nil
}

func (c *Client) CreateFile(ctx context.Context, parentPath, name, value string) ([]api.PathValue, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		CreateFile: &api.CreateFileRequest{ParentPath: parentPath, Name: name, Value: value},
	})
	if err != nil {
		return nil, err
	}
	return touched(resp)
}

func (c *Client) CreateDirectory(ctx context.Context, parentPath, name string) error {
	_, err := c.call(ctx, &api.ClientRequest{
		CreateDirectory: &api.CreateDirectoryRequest{ParentPath: parentPath, Name: name},
	})
	return err
}

func (c *Client) CreateFormula(ctx context.Context, parentPath, name, source string) ([]api.PathValue, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		CreateFormula: &api.CreateFormulaRequest{ParentPath: parentPath, Name: name, Source: source},
	})
	if err != nil {
		return nil, err
	}
	return touched(resp)
}

func (c *Client) RemoveNode(ctx context.Context, parentPath, name string) ([]api.PathValue, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		RemoveNode: &api.RemoveNodeRequest{ParentPath: parentPath, Name: name},
	})
	if err != nil {
		return nil, err
	}
	return touched(resp)
}

func (c *Client) ListDirectory(ctx context.Context, path string) ([]string, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		ListDirectory: &api.ListDirectoryRequest{Path: path},
	})
	if err != nil {
		return nil, err
	}
	if resp.Children == nil {
		return nil, fmt.Errorf("%w: response carries no children", ErrProtocol)
	}
	return resp.Children.Names, nil
}

func (c *Client) GetFile(ctx context.Context, path string) (string, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		GetFile: &api.GetFileRequest{Path: path},
	})
	if err != nil {
		return "", err
	}
	if resp.File == nil {
		return "", fmt.Errorf("%w: response carries no file", ErrProtocol)
	}
	return resp.File.Value, nil
}

func (c *Client) GetMatchingFiles(ctx context.Context, glob string) ([]api.PathValue, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		GetMatchingFiles: &api.GetMatchingFilesRequest{Glob: glob},
	})
	if err != nil {
		return nil, err
	}
	if resp.Files == nil {
		return nil, fmt.Errorf("%w: response carries no files", ErrProtocol)
	}
	return resp.Files.Files, nil
}

func (c *Client) SetFile(ctx context.Context, path, value string) ([]api.PathValue, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		SetFile: &api.SetFileRequest{Path: path, Value: value},
	})
	if err != nil {
		return nil, err
	}
	return touched(resp)
}

func (c *Client) SetMatchingFiles(ctx context.Context, glob, value string) ([]api.PathValue, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		SetMatchingFiles: &api.SetMatchingFilesRequest{Glob: glob, Value: value},
	})
	if err != nil {
		return nil, err
	}
	return touched(resp)
}

// Subscribe registers a glob and routes its batched events to handler.
func (c *Client) Subscribe(ctx context.Context, glob string, handler EventHandler) (uint64, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		Subscribe: &api.SubscribeRequest{Glob: glob},
	})
	if err != nil {
		return 0, err
	}
	if resp.Sub == nil {
		return 0, fmt.Errorf("%w: response carries no subscription id", ErrProtocol)
	}
	id := resp.Sub.SubscriptionID
	c.runControl(func() {
		c.handlers[id] = handler
		// Events broadcast between the server-side subscribe and this
		// registration were orphaned; replay them in order.
		for _, ev := range c.orphans[id] {
			handler(ev.Changes)
		}
		delete(c.orphans, id)
	})
	return id, nil
}

func (c *Client) Unsubscribe(ctx context.Context, subID uint64) error {
	_, err := c.call(ctx, &api.ClientRequest{
		Unsubscribe: &api.UnsubscribeRequest{SubscriptionID: subID},
	})
	if err != nil {
		return err
	}
	c.runControl(func() {
		delete(c.handlers, subID)
		delete(c.orphans, subID)
	})
	return nil
}

func (c *Client) Query(ctx context.Context, selector string) ([]api.QueryNode, error) {
	resp, err := c.call(ctx, &api.ClientRequest{
		Query: &api.QueryRequest{Selector: selector},
	})
	if err != nil {
		return nil, err
	}
	if resp.Nodes == nil {
		return nil, fmt.Errorf("%w: response carries no nodes", ErrProtocol)
	}
	return resp.Nodes.Nodes, nil
}

// ErrProtocol reports a response whose shape does not match the request
// that produced it.
var ErrProtocol = errors.New("protocol error")

func touched(resp *api.ServerResponse) ([]api.PathValue, error) {
	if resp.Ok == nil {
		return nil, fmt.Errorf("%w: response carries no ok", ErrProtocol)
	}
	return resp.Ok.Touched, nil
}
