package server

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthgrid/hearth/api"
	"github.com/hearthgrid/hearth/internal/engine"
)

// pipeSession wires a session to the near end of a net.Pipe so the
// protocol can be exercised without a listener or TLS.
func pipeSession(t *testing.T) (*Server, net.Conn) {
	t.Helper()
	srv := New(engine.New())
	serverConn, clientConn := net.Pipe()
	sess := newSession(srv, serverConn)
	go sess.run()
	t.Cleanup(func() { clientConn.Close() })
	return srv, clientConn
}

func roundTrip(t *testing.T, conn net.Conn, req *api.ClientRequest) *api.ServerResponse {
	t.Helper()
	require.NoError(t, api.WriteFrame(conn, req))
	for {
		var msg api.ServerMessage
		require.NoError(t, api.ReadFrame(conn, &msg))
		if msg.Response != nil {
			assert.Equal(t, req.ID, msg.Response.ID)
			return msg.Response
		}
	}
}

func TestSessionPing(t *testing.T) {
	_, conn := pipeSession(t)
	resp := roundTrip(t, conn, &api.ClientRequest{
		ID:   1,
		Ping: &api.PingRequest{Data: "hello"},
	})
	require.NotNil(t, resp.Pong)
	assert.Equal(t, "hello", resp.Pong.Data)
}

func TestSessionCreateAndGet(t *testing.T) {
	_, conn := pipeSession(t)

	resp := roundTrip(t, conn, &api.ClientRequest{
		ID:              1,
		CreateDirectory: &api.CreateDirectoryRequest{ParentPath: "/", Name: "room"},
	})
	require.NotNil(t, resp.Ok)

	resp = roundTrip(t, conn, &api.ClientRequest{
		ID:         2,
		CreateFile: &api.CreateFileRequest{ParentPath: "/room", Name: "switch", Value: "on"},
	})
	require.NotNil(t, resp.Ok)

	resp = roundTrip(t, conn, &api.ClientRequest{
		ID:      3,
		GetFile: &api.GetFileRequest{Path: "/room/switch"},
	})
	require.NotNil(t, resp.File)
	assert.Equal(t, "on", resp.File.Value)
}

func TestSessionErrorNames(t *testing.T) {
	_, conn := pipeSession(t)

	resp := roundTrip(t, conn, &api.ClientRequest{
		ID:      1,
		GetFile: &api.GetFileRequest{Path: "/nope"},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.ErrNameNotFound, resp.Error.Name)

	resp = roundTrip(t, conn, &api.ClientRequest{
		ID:            2,
		CreateFormula: &api.CreateFormulaRequest{ParentPath: "/", Name: "bad", Source: "1 +"},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.ErrNameSyntaxError, resp.Error.Name)

	resp = roundTrip(t, conn, &api.ClientRequest{ID: 3})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.ErrNameMalformedRequest, resp.Error.Name)
}

func TestSessionSubscribeDeliversBatch(t *testing.T) {
	_, conn := pipeSession(t)

	roundTrip(t, conn, &api.ClientRequest{
		ID:              1,
		CreateDirectory: &api.CreateDirectoryRequest{ParentPath: "/", Name: "room"},
	})
	roundTrip(t, conn, &api.ClientRequest{
		ID:         2,
		CreateFile: &api.CreateFileRequest{ParentPath: "/room", Name: "switch", Value: "off"},
	})

	resp := roundTrip(t, conn, &api.ClientRequest{
		ID:        3,
		Subscribe: &api.SubscribeRequest{Glob: "/room/*"},
	})
	require.NotNil(t, resp.Sub)
	subID := resp.Sub.SubscriptionID

	require.NoError(t, api.WriteFrame(conn, &api.ClientRequest{
		ID:      4,
		SetFile: &api.SetFileRequest{Path: "/room/switch", Value: "on"},
	}))

	var gotResponse, gotEvent bool
	deadline := time.Now().Add(5 * time.Second)
	for !gotResponse || !gotEvent {
		conn.SetReadDeadline(deadline)
		var msg api.ServerMessage
		require.NoError(t, api.ReadFrame(conn, &msg))
		switch {
		case msg.Response != nil:
			require.Nil(t, msg.Response.Error)
			gotResponse = true
		case msg.Event != nil:
			assert.Equal(t, subID, msg.Event.SubscriptionID)
			require.Len(t, msg.Event.Changes, 1)
			assert.Equal(t, "/room/switch", msg.Event.Changes[0].Path)
			assert.Equal(t, "on", msg.Event.Changes[0].Value)
			gotEvent = true
		}
	}
}

func TestSessionUnsubscribeUnknownID(t *testing.T) {
	_, conn := pipeSession(t)
	resp := roundTrip(t, conn, &api.ClientRequest{
		ID:          1,
		Unsubscribe: &api.UnsubscribeRequest{SubscriptionID: 99},
	})
	require.NotNil(t, resp.Error)
	assert.Equal(t, api.ErrNameNoSuchSubscription, resp.Error.Name)
}
