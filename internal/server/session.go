package server

import (
	"errors"
	"net"
	"sync"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"

	"github.com/hearthgrid/hearth/api"
	"github.com/hearthgrid/hearth/internal/engine"
	"github.com/hearthgrid/hearth/internal/formula"
	"github.com/hearthgrid/hearth/internal/subscribe"
	"github.com/hearthgrid/hearth/internal/tree"
)

// eventQueueDepth bounds how far a slow subscriber may fall behind
// before events are dropped.
const eventQueueDepth = 64

// session is one client connection. Responses and events share the
// write side of the connection; the events channel decouples the
// engine's notify path from a slow peer.
type session struct {
	id     string
	srv    *Server
	conn   net.Conn
	events chan api.SubscriptionEvent
	done   chan struct{}

	closeOnce sync.Once
	writeMu   sync.Mutex
}

func newSession(srv *Server, conn net.Conn) *session {
	return &session{
		id:     ulid.Make().String(),
		srv:    srv,
		conn:   conn,
		events: make(chan api.SubscriptionEvent, eventQueueDepth),
		done:   make(chan struct{}),
	}
}

func (s *session) run() {
	defer s.teardown()
	glog.Infof("session %s: connected from %s", s.id, s.conn.RemoteAddr())

	go s.pumpEvents()

	for {
		var req api.ClientRequest
		if err := api.ReadFrame(s.conn, &req); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				glog.V(1).Infof("session %s: read: %v", s.id, err)
			}
			return
		}
		resp := s.dispatch(&req)
		resp.ID = req.ID
		if err := s.writeMessage(&api.ServerMessage{Response: resp}); err != nil {
			glog.Warningf("session %s: write: %v", s.id, err)
			return
		}
	}
}

func (s *session) teardown() {
	s.close()
	s.srv.registry.DropOwner(s.id)
	glog.Infof("session %s: closed", s.id)
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}

// Deliver queues one batched subscription message. It runs on the
// engine's commit path and must not block: when the queue is full the
// event is dropped and the subscriber has to re-read current values.
func (s *session) Deliver(subID uint64, changes []engine.Change) {
	ev := api.SubscriptionEvent{SubscriptionID: subID, Changes: toPathValues(changes)}
	select {
	case s.events <- ev:
	default:
		glog.Warningf("session %s: event queue full, dropping changeset for subscription %d", s.id, subID)
	}
}

func (s *session) pumpEvents() {
	for {
		select {
		case ev := <-s.events:
			if err := s.writeMessage(&api.ServerMessage{Event: &ev}); err != nil {
				s.close()
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *session) writeMessage(msg *api.ServerMessage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return api.WriteFrame(s.conn, msg)
}

func (s *session) dispatch(req *api.ClientRequest) *api.ServerResponse {
	switch {
	case req.Ping != nil:
		return &api.ServerResponse{Pong: &api.PongResponse{Data: req.Ping.Data}}

	case req.CreateFile != nil:
		r := req.CreateFile
		cs, err := s.srv.engine.CreateFile(r.ParentPath, r.Name, r.Value)
		return okOrError(cs, err)

	case req.CreateDirectory != nil:
		r := req.CreateDirectory
		if err := s.srv.engine.CreateDirectory(r.ParentPath, r.Name); err != nil {
			return errorResponse(err)
		}
		return &api.ServerResponse{Ok: &api.OkResponse{}}

	case req.CreateFormula != nil:
		r := req.CreateFormula
		cs, err := s.srv.engine.CreateFormula(r.ParentPath, r.Name, r.Source)
		return okOrError(cs, err)

	case req.RemoveNode != nil:
		r := req.RemoveNode
		cs, err := s.srv.engine.RemoveNode(r.ParentPath, r.Name)
		return okOrError(cs, err)

	case req.ListDirectory != nil:
		names, err := s.srv.engine.ListDirectory(req.ListDirectory.Path)
		if err != nil {
			return errorResponse(err)
		}
		return &api.ServerResponse{Children: &api.ChildrenResponse{Names: names}}

	case req.GetFile != nil:
		value, err := s.srv.engine.GetFile(req.GetFile.Path)
		if err != nil {
			return errorResponse(err)
		}
		return &api.ServerResponse{File: &api.FileResponse{Value: value}}

	case req.GetMatchingFiles != nil:
		files, err := s.srv.engine.GetMatchingFiles(req.GetMatchingFiles.Glob)
		if err != nil {
			return errorResponse(err)
		}
		return &api.ServerResponse{Files: &api.FilesResponse{Files: toPathValues(files)}}

	case req.SetFile != nil:
		r := req.SetFile
		cs, err := s.srv.engine.SetFile(r.Path, r.Value)
		return okOrError(cs, err)

	case req.SetMatchingFiles != nil:
		r := req.SetMatchingFiles
		cs, err := s.srv.engine.SetMatchingFiles(r.Glob, r.Value)
		return okOrError(cs, err)

	case req.Subscribe != nil:
		glob, err := tree.ParseGlob(req.Subscribe.Glob)
		if err != nil {
			return errorResponse(err)
		}
		id := s.srv.registry.Subscribe(s.id, glob, s)
		return &api.ServerResponse{Sub: &api.SubscribeResponse{SubscriptionID: id}}

	case req.Unsubscribe != nil:
		if err := s.srv.registry.Unsubscribe(s.id, req.Unsubscribe.SubscriptionID); err != nil {
			return errorResponse(err)
		}
		return &api.ServerResponse{Ok: &api.OkResponse{}}

	case req.Query != nil:
		results, err := s.srv.engine.Query(req.Query.Selector)
		if err != nil {
			return errorResponse(err)
		}
		nodes := make([]api.QueryNode, len(results))
		for i, r := range results {
			nodes[i] = api.QueryNode{Path: r.Path, Attrs: r.Attrs}
		}
		return &api.ServerResponse{Nodes: &api.QueryResponse{Nodes: nodes}}
	}

	return &api.ServerResponse{Error: &api.ErrorResponse{
		Name:    api.ErrNameMalformedRequest,
		Context: "request carries no operation",
	}}
}

func okOrError(cs engine.Changeset, err error) *api.ServerResponse {
	if err != nil {
		return errorResponse(err)
	}
	return &api.ServerResponse{Ok: &api.OkResponse{Touched: toPathValues(cs)}}
}

func errorResponse(err error) *api.ServerResponse {
	return &api.ServerResponse{Error: &api.ErrorResponse{
		Name:    errorName(err),
		Context: err.Error(),
	}}
}

// errorName collapses the engine's sentinel errors onto the protocol's
// stable error vocabulary.
func errorName(err error) string {
	switch {
	case errors.Is(err, tree.ErrNotFound):
		return api.ErrNameNotFound
	case errors.Is(err, tree.ErrAlreadyExists):
		return api.ErrNameAlreadyExists
	case errors.Is(err, tree.ErrReadOnly):
		return api.ErrNameReadOnly
	case errors.Is(err, tree.ErrNotEmpty):
		return api.ErrNameNotEmpty
	case errors.Is(err, tree.ErrNotDirectory):
		return api.ErrNameNotDirectory
	case errors.Is(err, tree.ErrNotFile):
		return api.ErrNameNotFile
	case errors.Is(err, tree.ErrInvalidPath):
		return api.ErrNameInvalidPath
	case errors.Is(err, tree.ErrInvalidGlob):
		return api.ErrNameInvalidGlob
	case errors.Is(err, tree.ErrBadSelector):
		return api.ErrNameMalformedRequest
	case errors.Is(err, formula.ErrSyntax):
		return api.ErrNameSyntaxError
	case errors.Is(err, engine.ErrCyclicDependency):
		return api.ErrNameCyclicDependency
	case errors.Is(err, subscribe.ErrNoSuchSubscription):
		return api.ErrNameNoSuchSubscription
	default:
		return api.ErrNameInternal
	}
}

func toPathValues(changes []engine.Change) []api.PathValue {
	if len(changes) == 0 {
		return nil
	}
	out := make([]api.PathValue, len(changes))
	for i, c := range changes {
		out[i] = api.PathValue{Path: c.Path, Value: c.Value}
	}
	return out
}

var _ subscribe.Sink = (*session)(nil)
