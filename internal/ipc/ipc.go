package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"time"
)

const DefaultSocketPath = "/tmp/carepilld.sock"

// Request is one control command from carepill-ctl to the daemon.
type Request struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

// Reply is the daemon's answer.
type Reply struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Server answers control requests on a unix socket.
type Server struct {
	ln net.Listener
}

// Serve listens on path and invokes handler per request, writing the
// reply back on the same connection. Close stops the listener.
func Serve(path string, handler func(Request) Reply) (*Server, error) {
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go handleConn(conn, handler)
		}
	}()

	return &Server{ln: ln}, nil
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func handleConn(conn net.Conn, handler func(Request) Reply) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		return
	}
	json.NewEncoder(conn).Encode(handler(req))
}

// Send delivers one request to the daemon at path and returns its reply.
func Send(ctx context.Context, path, cmd, arg string) (Reply, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return Reply{}, fmt.Errorf("daemon not reachable at %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(Request{Cmd: cmd, Arg: arg}); err != nil {
		return Reply{}, err
	}
	var rep Reply
	if err := json.NewDecoder(conn).Decode(&rep); err != nil {
		return Reply{}, err
	}
	return rep, nil
}
