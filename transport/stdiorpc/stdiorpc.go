// Package stdiorpc implements the line-delimited JSON-RPC transport of
// spec.md §6 over stdin/stdout, grounded on the bufio.Scanner line-reading
// idiom in other_examples' genai-toolbox stdioSession and on
// runtime/mcp/runtime.go's encoding helpers. Diagnostic logging is routed to
// stderr so it never corrupts the wire protocol on stdout.
package stdiorpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/plexuscore/plexus/plexus"
	"github.com/plexuscore/plexus/telemetry"
	"github.com/plexuscore/plexus/transport/jsonrpc"
)

// Server reads one JSON-RPC request per line from in and writes responses
// and notifications, one JSON object per line, to out.
type Server struct {
	Plexus *plexus.Plexus
	Logger telemetry.Logger

	writeMu sync.Mutex
	out     io.Writer
}

// New constructs a Server. logger defaults to a no-op if nil.
func New(p *plexus.Plexus, logger telemetry.Logger) *Server {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Server{Plexus: p, Logger: logger}
}

// Serve reads requests from in until EOF or ctx is done, dispatching each to
// the plexus and writing its notification/response sequence to out. It
// returns nil on a clean EOF.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		req, parseErr := decodeRequest(line)
		if parseErr != nil {
			s.writeResponse(jsonrpc.NewError(nil, jsonrpc.CodeParseError, parseErr.Error()))
			continue
		}

		wg.Add(1)
		go func(req jsonrpc.Request) {
			defer wg.Done()
			s.handle(ctx, req)
		}(req)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdiorpc: read error: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req jsonrpc.Request) {
	stream := s.Plexus.Call(ctx, req.Method, req.Params)
	resp, err := jsonrpc.RunSubscription(req.ID, stream, func(n jsonrpc.Notification) error {
		return s.write(n)
	})
	if err != nil {
		s.Logger.Warn(ctx, "stdiorpc: failed writing notification", "component", "stdiorpc", "err", err)
		return
	}
	s.writeResponse(resp)
}

func (s *Server) writeResponse(r jsonrpc.Response) {
	if err := s.write(r); err != nil {
		s.Logger.Warn(context.Background(), "stdiorpc: failed writing response", "component", "stdiorpc", "err", err)
	}
}

// write serializes v as one JSON line; concurrent handlers share one writer,
// so writes are serialized to avoid interleaved partial lines.
func (s *Server) write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stdiorpc: marshal: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("stdiorpc: write: %w", err)
	}
	return nil
}

func decodeRequest(line []byte) (jsonrpc.Request, error) {
	var req jsonrpc.Request
	if err := json.Unmarshal(line, &req); err != nil {
		return jsonrpc.Request{}, err
	}
	if req.JSONRPC == "" {
		req.JSONRPC = jsonrpc.Version
	}
	if req.JSONRPC != jsonrpc.Version {
		return jsonrpc.Request{}, errors.New("unsupported jsonrpc version")
	}
	return req, nil
}
