// Command plexus-gateway is the MCP gateway companion process of
// SPEC_FULL.md §4.5: it runs the same MCP HTTP surface as plexusd's
// transport/mcpbridge, but reaches the plexus over a reconnecting WebSocket
// client instead of holding an in-process *plexus.Plexus, so the gateway's
// client connections survive a plexus restart. Grounded on
// original_source/src/bin/mcp_gateway.rs's Args/PlexusClient/
// PlexusGatewayBridge shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	"github.com/plexuscore/plexus/gateway"
	"github.com/plexuscore/plexus/telemetry"
)

func main() {
	var (
		portF      = flag.Int("port", 4445, "MCP HTTP listen port")
		plexusURLF = flag.String("plexus-url", "ws://127.0.0.1:4773", "Upstream plexus WebSocket URL")
		reconnectF = flag.Duration("reconnect-interval", 2*time.Second, "Base reconnect backoff")
		redisAddrF = flag.String("redis-addr", "", "Redis address for multi-replica gateway_status fan-out; empty runs in-process (single replica)")
		dbgF       = flag.Bool("debug", false, "Log request and response bodies")
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

	reconnect := gateway.DefaultReconnect()
	reconnect.InitialBackoff = *reconnectF

	client := gateway.NewClient(*plexusURLF, reconnect, logger)

	var notifier gateway.Notifier
	if *redisAddrF != "" {
		notifier = gateway.NewPulseNotifier(redis.NewClient(&redis.Options{Addr: *redisAddrF}), logger)
		log.Print(ctx, log.KV{K: "notifier", V: "pulse"}, log.KV{K: "redis_addr", V: *redisAddrF})
	} else {
		notifier = gateway.NewInProcessNotifier()
		log.Print(ctx, log.KV{K: "notifier", V: "in-process"})
	}

	gw := gateway.New(client, notifier, logger)

	ctx, cancel := context.WithCancel(ctx)
	runErrc := make(chan error, 1)
	go func() { runErrc <- gw.Run(ctx) }()

	addr := fmt.Sprintf(":%d", *portF)
	httpServer := &http.Server{Addr: addr, Handler: http.HandlerFunc(gw.ServeHTTP)}

	errc := make(chan error, 1)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Print(ctx, log.KV{K: "transport", V: "mcp-gateway"}, log.KV{K: "addr", V: addr}, log.KV{K: "plexus_url", V: *plexusURLF})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- fmt.Errorf("mcp-gateway http: %w", err)
		}
	}()

	select {
	case err := <-errc:
		log.Print(ctx, log.KV{K: "msg", V: fmt.Sprintf("exiting (%v)", err)})
	case err := <-runErrc:
		log.Print(ctx, log.KV{K: "msg", V: fmt.Sprintf("plexus connection loop stopped (%v)", err)})
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = client.Close()
	log.Print(ctx, log.KV{K: "msg", V: "exited"})
}
