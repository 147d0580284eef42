package supervisor

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/orangescada/opcua/internal/engine"
	"github.com/rs/zerolog"
)

// maxLineBytes bounds a single supervisor frame; anything larger is a
// malformed client and the connection is dropped.
const maxLineBytes = 1 << 20

// Config configures the Server.
type Config struct {
	ListenAddress string
	TLSEnabled    bool
	TLSCertFile   string
	TLSKeyFile    string
	BatchWindow   time.Duration
}

// Server is the line-delimited JSON TCP/TLS listener the supervisor
// connects to: a raw net.Listener accept loop, one goroutine per
// connection, shut down on context cancellation.
type Server struct {
	cfg    Config
	engine *engine.Engine
	hub    *hub
	logger zerolog.Logger

	listener net.Listener
}

func NewServer(cfg Config, eng *engine.Engine, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		engine: eng,
		hub:    newHub(),
		logger: logger.With().Str("component", "supervisor-server").Logger(),
	}
}

// BatchSink exposes the server's connection hub as the engine's
// Change Pump sink. Call this before starting the engine's
// first connection so every asyncTagsValues push reaches connected
// supervisors.
func (s *Server) BatchSink() engine.BatchSink {
	return s.hub
}

// SetEngine attaches the engine the server dispatches requests to. The
// engine's construction depends on the server's hub (as a BatchSink),
// so callers build the server first, then the engine, then call this
// before ListenAndServe accepts any connections.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// ListenAndServe blocks accepting connections until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.listen()
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info().Str("address", s.cfg.ListenAddress).Bool("tls", s.cfg.TLSEnabled).Msg("supervisor listener started")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.logger.Warn().Err(err).Msg("accept failed")
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) listen() (net.Listener, error) {
	if !s.cfg.TLSEnabled {
		return net.Listen("tcp", s.cfg.ListenAddress)
	}
	cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	if err != nil {
		return nil, err
	}
	return tls.Listen("tcp", s.cfg.ListenAddress, &tls.Config{Certificates: []tls.Certificate{cert}})
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	h := newConnHandler(conn, s.engine, s.cfg.BatchWindow, s.logger)
	s.hub.add(h)
	defer s.hub.remove(h)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.batcher.Start(connCtx)
	defer h.batcher.Stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		lineCopy := append([]byte(nil), line...)
		h.dispatch(connCtx, lineCopy)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug().Err(err).Msg("connection closed with error")
	}
}
