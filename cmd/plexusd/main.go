// Command plexusd is the plexus server binary: it builds a Plexus from the
// bundled activations and serves it either over stdio JSON-RPC alone (with
// --stdio) or over WebSocket JSON-RPC and the MCP HTTP/SSE bridge together
// (without it). Grounded
// on original_source/src/builder.rs's activation wiring and
// example/cmd/assistant/main.go's flag/logger/signal-handling shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"goa.design/clue/log"

	"github.com/plexuscore/plexus/activations/arbor"
	"github.com/plexuscore/plexus/activations/echo"
	"github.com/plexuscore/plexus/activations/health"
	"github.com/plexuscore/plexus/mcpsession"
	"github.com/plexuscore/plexus/plexus"
	"github.com/plexuscore/plexus/telemetry"
	"github.com/plexuscore/plexus/transport/mcpbridge"
	"github.com/plexuscore/plexus/transport/stdiorpc"
	"github.com/plexuscore/plexus/transport/wsrpc"
)

func main() {
	var (
		wsAddrF       = flag.String("ws-addr", ":4773", "WebSocket JSON-RPC listen address")
		mcpAddrF      = flag.String("mcp-addr", ":4774", "MCP HTTP/SSE listen address")
		stdioF        = flag.Bool("stdio", false, "Serve stdio JSON-RPC on stdin/stdout instead of the network transports")
		sessionDBF    = flag.String("session-db", ".plexus/mcp-sessions.db", "Path to the MCP session SQLite database")
		sessionMaxAge = flag.Duration("session-max-age", mcpsession.DefaultMaxAge, "Retention window for MCP session rows")
		dbgF          = flag.Bool("debug", false, "Log request and response bodies")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	logger := telemetry.NewClueLogger()

	p, err := plexus.Build(ctx, plexus.Options{Logger: logger},
		health.New(),
		echo.New(),
		arbor.New(),
	)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("build plexus: %w", err))
	}
	log.Print(ctx, log.KV{K: "methods", V: len(p.ListMethods())}, log.KV{K: "hash", V: p.ComputeHash()})

	if err := os.MkdirAll(parentDir(*sessionDBF), 0o755); err != nil {
		log.Fatal(ctx, fmt.Errorf("create session db directory: %w", err))
	}
	sessions, err := mcpsession.Open(ctx, *sessionDBF, *sessionMaxAge)
	if err != nil {
		log.Fatal(ctx, fmt.Errorf("open mcp session store: %w", err))
	}
	defer sessions.Close()

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(ctx)

	if *stdioF {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := stdiorpc.New(p, logger)
			if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil {
				errc <- fmt.Errorf("stdio: %w", err)
			}
		}()
	} else {
		wsServer := &http.Server{Addr: *wsAddrF, Handler: wsrpc.New(p, logger)}
		mcpServer := &http.Server{Addr: *mcpAddrF, Handler: mcpbridge.Router(p, sessions, logger)}

		wg.Add(2)
		go func() {
			defer wg.Done()
			log.Print(ctx, log.KV{K: "transport", V: "wsrpc"}, log.KV{K: "addr", V: *wsAddrF})
			if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- fmt.Errorf("wsrpc: %w", err)
			}
		}()
		go func() {
			defer wg.Done()
			log.Print(ctx, log.KV{K: "transport", V: "mcpbridge"}, log.KV{K: "addr", V: *mcpAddrF})
			if err := mcpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errc <- fmt.Errorf("mcpbridge: %w", err)
			}
		}()

		go func() {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = wsServer.Shutdown(shutdownCtx)
			_ = mcpServer.Shutdown(shutdownCtx)
		}()
	}

	log.Print(ctx, log.KV{K: "msg", V: fmt.Sprintf("exiting (%v)", <-errc)})
	cancel()
	wg.Wait()
	log.Print(ctx, log.KV{K: "msg", V: "exited"})
}

func parentDir(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}
