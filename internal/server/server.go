// Package server speaks the length-framed session protocol over TLS.
// Each accepted connection gets one session goroutine that reads
// requests, drives the engine, and streams subscription events back.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"github.com/golang/glog"

	"github.com/hearthgrid/hearth/internal/engine"
	"github.com/hearthgrid/hearth/internal/subscribe"
)

// Server accepts sessions and fans committed changesets out to their
// subscriptions.
type Server struct {
	engine   *engine.Engine
	registry *subscribe.Registry

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*session
	wg       sync.WaitGroup
}

func New(eng *engine.Engine) *Server {
	s := &Server{
		engine:   eng,
		registry: subscribe.NewRegistry(),
		sessions: make(map[string]*session),
	}
	eng.SetNotify(s.registry.Broadcast)
	return s
}

// ListenAndServe binds addr with the given TLS config and serves until
// ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string, tlsConf *tls.Config) error {
	ln, err := tls.Listen("tcp", addr, tlsConf)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on ln. It returns after ctx is canceled
// and every live session has wound down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		ln.Close()
		s.closeSessions()
	}()

	glog.Infof("listening on %s", ln.Addr())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			glog.Warningf("accept: %v", err)
			continue
		}
		sess := newSession(s, conn)
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.run()
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
		}()
	}
	s.wg.Wait()
	return nil
}

// Addr reports the bound listener address, for tests that listen on
// port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) closeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.close()
	}
}
