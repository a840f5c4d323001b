package client

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthgrid/hearth/api"
	"github.com/hearthgrid/hearth/internal/engine"
	"github.com/hearthgrid/hearth/internal/server"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := server.New(engine.New())
	go srv.Serve(ctx, ln)
	t.Cleanup(cancel)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	c := NewClient(conn)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientRoundTrips(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := c.Ping(ctx, "echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", data)

	require.NoError(t, c.CreateDirectory(ctx, "/", "room"))
	_, err = c.CreateFile(ctx, "/room", "switch", "off")
	require.NoError(t, err)

	value, err := c.GetFile(ctx, "/room/switch")
	require.NoError(t, err)
	assert.Equal(t, "off", value)

	names, err := c.ListDirectory(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"room"}, names)
}

func TestClientRemoteError(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := c.GetFile(ctx, "/missing")
	require.Error(t, err)
	var remote *api.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, api.ErrNameNotFound, remote.Name)
}

func TestClientSubscription(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.CreateDirectory(ctx, "/", "room"))
	_, err := c.CreateFile(ctx, "/room", "switch", "off")
	require.NoError(t, err)

	got := make(chan []api.PathValue, 1)
	_, err = c.Subscribe(ctx, "/room/*", func(changes []api.PathValue) {
		got <- changes
	})
	require.NoError(t, err)

	_, err = c.SetFile(ctx, "/room/switch", "on")
	require.NoError(t, err)

	select {
	case changes := <-got:
		require.Len(t, changes, 1)
		assert.Equal(t, "/room/switch", changes[0].Path)
		assert.Equal(t, "on", changes[0].Value)
	case <-ctx.Done():
		t.Fatal("no event before timeout")
	}
}

func TestEventBeforeSubscribeResponseIsDelivered(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	c := NewClient(clientConn)
	t.Cleanup(func() { c.Close() })

	// Scripted peer: the event for the new subscription lands on the
	// wire before the subscribe response does.
	go func() {
		var req api.ClientRequest
		if err := api.ReadFrame(serverConn, &req); err != nil {
			return
		}
		_ = api.WriteFrame(serverConn, &api.ServerMessage{Event: &api.SubscriptionEvent{
			SubscriptionID: 1,
			Changes:        []api.PathValue{{Path: "/room/switch", Value: "on"}},
		}})
		_ = api.WriteFrame(serverConn, &api.ServerMessage{Response: &api.ServerResponse{
			ID:  req.ID,
			Sub: &api.SubscribeResponse{SubscriptionID: 1},
		}})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan []api.PathValue, 1)
	_, err := c.Subscribe(ctx, "/room/*", func(changes []api.PathValue) {
		got <- changes
	})
	require.NoError(t, err)

	select {
	case changes := <-got:
		require.Len(t, changes, 1)
		assert.Equal(t, "/room/switch", changes[0].Path)
		assert.Equal(t, "on", changes[0].Value)
	case <-ctx.Done():
		t.Fatal("early event was lost")
	}
}

func TestClientCallsFromHandler(t *testing.T) {
	c := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, c.CreateDirectory(ctx, "/", "room"))
	_, err := c.CreateFile(ctx, "/room", "switch", "off")
	require.NoError(t, err)
	_, err = c.CreateFile(ctx, "/room", "mirror", "")
	require.NoError(t, err)

	done := make(chan error, 1)
	_, err = c.Subscribe(ctx, "/room/switch", func(changes []api.PathValue) {
		// A handler may drive further requests without deadlocking.
		_, err := c.SetFile(ctx, "/room/mirror", changes[0].Value)
		done <- err
	})
	require.NoError(t, err)

	_, err = c.SetFile(ctx, "/room/switch", "on")
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("handler never ran")
	}

	value, err := c.GetFile(ctx, "/room/mirror")
	require.NoError(t, err)
	assert.Equal(t, "on", value)
}
