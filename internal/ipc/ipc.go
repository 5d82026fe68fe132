// Package ipc is the control channel of a running assistant: one JSON
// request and one JSON reply per unix socket connection.
package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
	"sync"
	"time"
)

const DefaultSocketPath = "/tmp/echo.sock"

const (
	CmdStatus    = "status"
	CmdSay       = "say"
	CmdText      = "text"
	CmdInterrupt = "interrupt"
	CmdQuit      = "quit"
)

type ControlMessage struct {
	Cmd  string `json:"cmd"`
	Text string `json:"text,omitempty"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	State string `json:"state,omitempty"`
	Error string `json:"error,omitempty"`
}

// Handler answers one control message.
type Handler func(ctx context.Context, msg ControlMessage) Reply

type Server struct {
	path    string
	ln      net.Listener
	handler Handler
	wg      sync.WaitGroup
}

// Listen binds the socket, replacing a stale one left by a previous run.
func Listen(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = DefaultSocketPath
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	return &Server{path: path, ln: ln, handler: handler}, nil
}

func (s *Server) Path() string { return s.path }

// Serve accepts connections until ctx is done, then removes the socket.
func (s *Server) Serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			log.Warn("Failed to accept control connection", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}

	s.wg.Wait()
	os.Remove(s.path)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Debug("Bad control message", "err", err)
		json.NewEncoder(conn).Encode(Reply{Error: "bad request"})
		return
	}

	log.Debug("Control message", "cmd", msg.Cmd)
	reply := s.handler(ctx, msg)
	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Debug("Failed to write control reply", "err", err)
	}
}

// Send delivers msg to the server at path and waits for its reply.
func Send(ctx context.Context, path string, msg ControlMessage) (Reply, error) {
	if path == "" {
		path = DefaultSocketPath
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		conn.SetDeadline(dl)
	}

	if err := json.NewEncoder(conn).Encode(msg); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}
	var r Reply
	if err := json.NewDecoder(conn).Decode(&r); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	return r, nil
}
