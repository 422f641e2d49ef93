// Command chatmd exports chat conversations as Markdown files.
//
// Usage:
//
//	chatmd -html saved.html -out exports/            # export a saved page and exit
//	chatmd -html saved.html -index 3 -mode research  # export one message
//	chatmd -url https://chatgpt.com/c/... -out exports/ -listen :8080
//	chatmd -config chatmd.yaml                        # everything from YAML
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/chatmd/adapter"
	"github.com/hazyhaar/chatmd/assemble"
	"github.com/hazyhaar/chatmd/domwatch"
	"github.com/hazyhaar/chatmd/exporter"
	"github.com/hazyhaar/chatmd/idgen"
	"github.com/hazyhaar/chatmd/internal/config"
	"github.com/hazyhaar/chatmd/server"
)

const version = "0.1.0"

type options struct {
	configPath string
	pageURL    string
	htmlPath   string
	out        string
	adapter    string
	db         string
	listen     string
	mcp        string
	mode       string
	index      int
	headful    bool
	remote     string
	attach     bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "path to chatmd.yaml")
	flag.StringVar(&o.pageURL, "url", "", "watch a live conversation page")
	flag.StringVar(&o.htmlPath, "html", "", "export a saved conversation page")
	flag.StringVar(&o.out, "out", "", `output directory, or "-" for stdout`)
	flag.StringVar(&o.adapter, "adapter", "", "built-in adapter name or adapter YAML file")
	flag.StringVar(&o.db, "db", "", "SQLite file for the research counter")
	flag.StringVar(&o.listen, "listen", "", "HTTP listen address for commands")
	flag.StringVar(&o.mcp, "mcp", "", "serve MCP tools: stdio or http")
	flag.StringVar(&o.mode, "mode", "", "export mode with -index: normal, research, skip")
	flag.IntVar(&o.index, "index", -1, "with -html: export only this message")
	flag.BoolVar(&o.headful, "headful", false, "show the browser window (to log in)")
	flag.StringVar(&o.remote, "remote", "", "DevTools WebSocket URL of a running Chrome")
	flag.BoolVar(&o.attach, "attach", false, "reuse an open tab for -url instead of opening one")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, o); err != nil {
		logger.Error("chatmd: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(o options) (*config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	if o.pageURL != "" {
		cfg.Watch.URL = o.pageURL
	}
	if o.adapter != "" {
		cfg.Adapter.Name = o.adapter
	}
	if o.db != "" {
		cfg.Naming.DB = o.db
	}
	if o.listen != "" {
		cfg.Server.Listen = o.listen
	}
	if o.mcp != "" {
		cfg.Server.MCP = o.mcp
	}
	if o.headful {
		cfg.Browser.Mode = "headful"
	}
	if o.remote != "" {
		cfg.Browser.Remote = o.remote
	}
	if o.attach {
		cfg.Browser.Attach = true
	}
	switch o.out {
	case "":
	case "-":
		cfg.Sinks = append(cfg.Sinks, config.SinkConfig{Type: "stdout"})
	default:
		cfg.Sinks = append(cfg.Sinks, config.SinkConfig{Type: "dir", Path: o.out})
	}
	if cfg.Server.MCP == "http" && cfg.Server.Listen == "" {
		return nil, errors.New("-mcp http needs -listen")
	}
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	if cfg.Watch.URL == "" && o.htmlPath == "" {
		return errors.New("nothing to do: give -url, -html or a config with watch.url")
	}

	site, err := cfg.Adapter.Site()
	if err != nil {
		return err
	}
	store, err := cfg.Naming.OpenStore()
	if err != nil {
		return fmt.Errorf("naming store: %w", err)
	}
	defer store.Close()

	sinks, err := config.BuildSinks(cfg.Sinks, logger)
	if err != nil {
		return err
	}
	defer sinks.Close()

	engine, err := exporter.New(exporter.Config{
		Site:   site,
		Store:  store,
		Sink:   sinks,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	oneShot := cfg.Watch.URL == "" && cfg.Server.Listen == "" && cfg.Server.MCP == ""
	if oneShot {
		return exportOnce(ctx, engine, o)
	}

	var page []byte
	if o.htmlPath != "" {
		if page, err = os.ReadFile(o.htmlPath); err != nil {
			return err
		}
	}

	if cfg.Watch.URL != "" {
		pageID := cfg.Watch.PageID
		if pageID == "" {
			pageID = idgen.New()
		}
		sess, err := domwatch.Open(ctx, cfg.Session(logger), cfg.Watch.URL, pageID, engine)
		if err != nil {
			return err
		}
		defer sess.Close()
		engine.Attach(sess)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })

	if page != nil {
		g.Go(func() error { return engine.LoadHTML(ctx, "file://"+o.htmlPath, page) })
	}

	if cfg.Adapter.File != "" {
		g.Go(func() error {
			return adapter.Watch(ctx, cfg.Adapter.File, logger, func(s *adapter.Site) {
				if err := engine.SetSite(ctx, s); err != nil {
					logger.Warn("chatmd: adapter reload not applied", "error", err)
				}
			})
		})
	}

	srv := server.New(engine, logger)
	var mcpSrv *mcp.Server
	if cfg.Server.MCP != "" {
		mcpSrv = srv.NewMCP(version)
	}
	if cfg.Server.MCP == "stdio" {
		for _, sc := range cfg.Sinks {
			if sc.Type == "stdout" || sc.Type == "jsonl" {
				logger.Warn("chatmd: stdout sink shares stdout with the MCP stdio transport")
			}
		}
		g.Go(func() error { return mcpSrv.Run(ctx, &mcp.StdioTransport{}) })
	}
	if cfg.Server.Listen != "" {
		var h http.Handler
		if cfg.Server.MCP == "http" {
			h = srv.Router(mcpSrv)
		} else {
			h = srv.Router(nil)
		}
		httpSrv := &http.Server{Addr: cfg.Server.Listen, Handler: h, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("chatmd: listening", "addr", cfg.Server.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpSrv.Shutdown(shutCtx)
		})
	}

	return g.Wait()
}

// exportOnce loads the saved page, exports it and returns.
func exportOnce(ctx context.Context, engine *exporter.Engine, o options) error {
	src, err := os.ReadFile(o.htmlPath)
	if err != nil {
		return err
	}
	mode, err := assemble.ParseMode(o.mode)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })

	g.Go(func() error {
		defer cancel()
		if err := engine.LoadHTML(gctx, "file://"+o.htmlPath, src); err != nil {
			return err
		}
		var exportErr error
		if o.index >= 0 {
			_, exportErr = engine.ExportMessage(gctx, o.index, mode)
		} else {
			_, exportErr = engine.ExportConversation(gctx)
		}
		return exportErr
	})
	return g.Wait()
}
