package control

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/harmony-wg/agent/internal/agenterr"
)

// Server listens on a UNIX-domain stream socket and serves newline-delimited
// JSON requests sequentially per connection. Grounded on
// original_source/src/control/server.go's accept loop and stale-socket
// removal, translated from tokio's UnixListener to net.Listen("unix", ...).
type Server struct {
	logger  *slog.Logger
	handler *Handler
	path    string

	listener net.Listener
	wg       sync.WaitGroup
}

func NewServer(logger *slog.Logger, handler *Handler, socketPath string) *Server {
	return &Server{logger: logger, handler: handler, path: socketPath}
}

// Start removes a stale socket file (if not in use), binds a fresh UNIX
// socket at 0600, and begins accepting connections in the background.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "create control socket directory")
	}

	if err := removeStaleSocket(s.path); err != nil {
		return err
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "bind control socket")
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return agenterr.Wrap(agenterr.KindPlatformError, err, "chmod control socket")
	}
	s.listener = ln

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	s.logger.Info("control server listening", "path", s.path)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

// serveConn reads one request per line, dispatches it, and writes one reply
// per line, sequentially — the connection is full-duplex at the transport
// level but the core serves requests one at a time.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(conn, errorResponse("unknown", agenterr.Wrap(agenterr.KindParseError, err, "invalid json request")))
			continue
		}

		resp := s.handler.Handle(ctx, req)
		if !s.writeResponse(conn, resp) {
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp Response) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return false
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		s.logger.Debug("failed to write response, client likely disconnected", "error", err)
		return false
	}
	return true
}

// Shutdown closes the listener, waits for in-flight connections to finish,
// and removes the socket file from the filesystem.
func (s *Server) Shutdown() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	_ = os.Remove(s.path)
}

// removeStaleSocket removes the socket file at path if it exists and no
// live listener is using it. A crashed prior process leaves the socket file
// behind without a listener; startup must clear it before binding.
func removeStaleSocket(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return agenterr.Wrap(agenterr.KindPlatformError, err, "stat control socket")
	}
	if info.Mode()&os.ModeSocket == 0 {
		return agenterr.New(agenterr.KindPlatformError, fmt.Sprintf("control socket path %q exists and is not a socket", path))
	}

	// A connect attempt tells us whether the socket is live.
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return agenterr.New(agenterr.KindPlatformError, fmt.Sprintf("control socket %q is already in use", path))
	}

	if err := os.Remove(path); err != nil {
		return agenterr.Wrap(agenterr.KindPlatformError, err, "remove stale control socket")
	}
	return nil
}
