package proxy

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/config"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/logging"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/metrics"
)

// Server accepts client connections and runs one inspecting session per
// connection. Session errors are logged with the client address and never
// reach the accept loop.
type Server struct {
	cfg       *config.Config
	tlsConfig *tls.Config
	metrics   *metrics.Collector

	listener net.Listener
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	log      *logrus.Entry
}

// NewServer creates a proxy server. A configured certificate that fails to
// load is a startup error, not a warning: the operator asked for SSL.
func NewServer(cfg *config.Config, m *metrics.Collector) (*Server, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
		log:     logging.Target("proxy::server"),
	}

	if cfg.SSLEnabled() {
		cert, err := tls.LoadX509KeyPair(cfg.SSLCert, cfg.SSLKey)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("loading TLS cert/key: %w", err)
		}
		s.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	return s, nil
}

// Listen binds the listen address and starts accepting in the background.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr(), err)
	}
	s.listener = ln

	if s.tlsConfig != nil {
		s.log.Infof("PostgreSQL proxy listening on %s (SSL enabled)", s.cfg.ListenAddr())
	} else {
		s.log.Infof("PostgreSQL proxy listening on %s (non-SSL)", s.cfg.ListenAddr())
	}
	s.log.Infof("Forwarding to %s", s.cfg.UpstreamAddr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ln)
	}()
	return nil
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.log.Errorf("Accept error: %v", err)
				continue
			}
		}

		// Sessions are not tracked by the WaitGroup: shutdown abandons
		// in-flight sessions rather than waiting out idle transactions.
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(clientConn net.Conn) {
	defer clientConn.Close()

	addr := clientConn.RemoteAddr().String()
	s.log.Infof("New connection from %s", addr)

	s.metrics.SessionOpened()
	start := time.Now()
	defer func() {
		s.metrics.SessionClosed(time.Since(start))
	}()

	sess := newSession(s.cfg, s.tlsConfig, s.metrics, clientConn, addr)
	if err := sess.run(); err != nil {
		s.log.Errorf("Connection error from %s: %v", addr, err)
	}
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and stops the accept loop. In-flight sessions
// are abandoned; their sockets close when the process exits.
func (s *Server) Stop() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	s.log.Infof("Proxy server stopped")
}
