// Command hub is the mcp-citadel process entry point: it loads
// configuration, starts every configured child MCP server, and exposes
// both the unix-socket LocalRouter and the HTTP/SSE transport, with
// zero-downtime listener handoff on SIGHUP via tableflip.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudflare/tableflip"

	"github.com/kivo360/mcp-citadel/config"
	"github.com/kivo360/mcp-citadel/internal/childproc"
	"github.com/kivo360/mcp-citadel/internal/session"
	"github.com/kivo360/mcp-citadel/internal/supervisor"
	"github.com/kivo360/mcp-citadel/jsonrpc"
	"github.com/kivo360/mcp-citadel/metrics"
	"github.com/kivo360/mcp-citadel/transport/httptransport"
	"github.com/kivo360/mcp-citadel/transport/local"
)

func main() {
	configPath := flag.String("config", "mcp-citadel.yaml", "path to the hub configuration file")
	pidFile := flag.String("pid-file", "", "tableflip pid file (optional)")
	flag.Parse()

	logger := jsonrpc.DefaultLogger

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("hub: failed to load config: %v", err)
		os.Exit(1)
	}

	specs := make([]childproc.Spec, 0, len(cfg.Children))
	for _, child := range cfg.Children {
		specs = append(specs, childproc.Spec{
			Name:    child.Name,
			Command: child.Command,
			Args:    child.Args,
			Env:     child.Env,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := metrics.Noop()
	sup := supervisor.New(ctx, specs, supervisor.WithLogger(logger), supervisor.WithMetrics(sink))
	defer sup.Close()

	sessions := session.NewStore(ctx, cfg.SessionTimeout, session.WithLogger(logger), session.WithMetrics(sink))
	defer sessions.Close()

	router := local.New(cfg.LocalSocketPath, sup, local.WithLogger(logger))
	httpHandler := httptransport.New(sup, sessions, httptransport.WithLogger(logger))

	upg, err := tableflip.New(tableflip.Options{PIDFile: *pidFile})
	if err != nil {
		logger.Errorf("hub: tableflip.New: %v", err)
		os.Exit(1)
	}
	defer upg.Stop()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGHUP)
		for range sig {
			logger.Infof("hub: received SIGHUP, upgrading")
			if err := upg.Upgrade(); err != nil {
				logger.Errorf("hub: upgrade: %v", err)
			}
		}
	}()

	// Remove a stale socket file left by a non-tableflip-managed prior
	// run; tableflip itself owns handoff of the fd across generations
	// once this process is up.
	if _, statErr := os.Stat(cfg.LocalSocketPath); statErr == nil {
		_ = os.Remove(cfg.LocalSocketPath)
	}
	unixLn, err := upg.Listen("unix", cfg.LocalSocketPath)
	if err != nil {
		logger.Errorf("hub: listen unix %s: %v", cfg.LocalSocketPath, err)
		os.Exit(1)
	}
	if err := os.Chmod(cfg.LocalSocketPath, 0o600); err != nil {
		logger.Errorf("hub: chmod %s: %v", cfg.LocalSocketPath, err)
		os.Exit(1)
	}
	go func() {
		if err := router.ServeListener(ctx, unixLn); err != nil {
			logger.Errorf("hub: local router stopped: %v", err)
		}
	}()

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		httpLn, err := upg.Listen("tcp", cfg.HTTP.Addr())
		if err != nil {
			logger.Errorf("hub: listen tcp %s: %v", cfg.HTTP.Addr(), err)
			os.Exit(1)
		}
		// ReadTimeout/WriteTimeout are absolute deadlines from request-start
		// to full-response-completion and are never reset by streaming
		// writes (net/http.Server docs) — applying either here would cut
		// every SSE stream (initialize, sampling/createMessage, a long-GET)
		// after cfg.HTTP.Timeout regardless of keep-alive traffic, even
		// though a session is meant to live up to SessionTimeout. Only
		// bound the time to read request headers.
		httpServer = &http.Server{
			Handler:           httpHandler,
			ReadHeaderTimeout: cfg.HTTP.Timeout,
		}
		go func() {
			if err := httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
				logger.Errorf("hub: http server stopped: %v", err)
			}
		}()
	}

	if err := upg.Ready(); err != nil {
		logger.Errorf("hub: tableflip.Ready: %v", err)
		os.Exit(1)
	}
	logger.Infof("hub: ready, children=%v", sup.ListNames())

	<-upg.Exit()
	logger.Infof("hub: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	_ = router.Close()
	cancel()
}
