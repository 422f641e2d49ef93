// Package server exposes the export engine over HTTP (chi) and MCP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/chatmd/assemble"
	"github.com/hazyhaar/chatmd/exporter"
	"github.com/hazyhaar/chatmd/kit"
)

// maxBody caps uploaded HTML pages.
const maxBody = 32 << 20

// Service is what the routes drive. *exporter.Engine implements it.
type Service interface {
	Do(ctx context.Context, cmd exporter.Command) exporter.CommandResult
	ExportConversation(ctx context.Context) (assemble.Document, error)
	ExportMessage(ctx context.Context, index int, mode assemble.Mode) (assemble.Document, error)
	ExportControl(ctx context.Context, control string, mode assemble.Mode) (assemble.Document, error)
	Messages(ctx context.Context) ([]exporter.MessageInfo, error)
	LoadHTML(ctx context.Context, pageURL string, src []byte) error
	RenderHTML(src string) (string, error)
}

// Server holds the endpoints shared by both transports.
type Server struct {
	svc    Service
	logger *slog.Logger
}

// New creates a Server for svc.
func New(svc Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

func (s *Server) wrap(op string, ep kit.Endpoint) kit.Endpoint {
	return kit.Chain(kit.WithRequestIDs(nil), kit.Logging(s.logger, op))(ep)
}

// ExportRequest selects what to export. With neither Index nor Control
// set, the whole conversation is exported.
type ExportRequest struct {
	Index   *int   `json:"index,omitempty"`
	Control string `json:"control,omitempty"`
	Mode    string `json:"mode,omitempty"`
}

// RenderRequest is an HTML fragment to convert.
type RenderRequest struct {
	HTML string `json:"html"`
}

// LoadRequest is a saved page to use as the current document.
type LoadRequest struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html"`
}

func (s *Server) exportEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*ExportRequest)
	mode, err := assemble.ParseMode(r.Mode)
	if err != nil {
		return nil, kit.WithStatus(http.StatusBadRequest, err)
	}
	var doc assemble.Document
	switch {
	case r.Control != "":
		doc, err = s.svc.ExportControl(ctx, r.Control, mode)
	case r.Index != nil:
		doc, err = s.svc.ExportMessage(ctx, *r.Index, mode)
	default:
		doc, err = s.svc.ExportConversation(ctx)
	}
	if err != nil {
		return nil, classify(err)
	}
	return doc, nil
}

func (s *Server) messagesEndpoint(ctx context.Context, _ any) (any, error) {
	msgs, err := s.svc.Messages(ctx)
	if err != nil {
		return nil, classify(err)
	}
	if msgs == nil {
		msgs = []exporter.MessageInfo{}
	}
	return map[string]any{"messages": msgs}, nil
}

func (s *Server) renderEndpoint(_ context.Context, req any) (any, error) {
	r := req.(*RenderRequest)
	md, err := s.svc.RenderHTML(r.HTML)
	if err != nil {
		return nil, err
	}
	return map[string]string{"markdown": md}, nil
}

func (s *Server) loadEndpoint(ctx context.Context, req any) (any, error) {
	r := req.(*LoadRequest)
	if r.HTML == "" {
		return nil, kit.WithStatus(http.StatusBadRequest, errors.New("html is required"))
	}
	if err := s.svc.LoadHTML(ctx, r.URL, []byte(r.HTML)); err != nil {
		return nil, classify(err)
	}
	return map[string]string{"status": "loaded"}, nil
}

// classify maps engine errors to HTTP statuses.
func classify(err error) error {
	switch {
	case errors.Is(err, exporter.ErrNoDocument):
		return kit.WithStatus(http.StatusConflict, err)
	case errors.Is(err, exporter.ErrNoMessage), errors.Is(err, exporter.ErrUnknownControl):
		return kit.WithStatus(http.StatusNotFound, err)
	case errors.Is(err, assemble.ErrContentNotFound),
		errors.Is(err, assemble.ErrEmptyContent),
		errors.Is(err, assemble.ErrNoConversationContent):
		return kit.WithStatus(http.StatusUnprocessableEntity, err)
	case errors.Is(err, exporter.ErrClosed):
		return kit.WithStatus(http.StatusServiceUnavailable, err)
	}
	return err
}

// Router returns the HTTP routes. When mcpSrv is non-nil it is mounted at
// /mcp over streamable HTTP.
func (s *Server) Router(mcpSrv *mcp.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		kit.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Extension-style commands answer 200 with {success, error}.
	r.Post("/commands", func(w http.ResponseWriter, r *http.Request) {
		var cmd exporter.Command
		if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&cmd); err != nil {
			kit.WriteJSON(w, http.StatusBadRequest, exporter.CommandResult{Error: err.Error()})
			return
		}
		ctx := kit.WithTransport(r.Context(), "http")
		res := s.svc.Do(ctx, cmd)
		if !res.Success {
			s.logger.Warn("server: command failed", "type", cmd.Type, "error", res.Error)
		}
		kit.WriteJSON(w, http.StatusOK, res)
	})

	r.Post("/export", kit.HTTPHandler(s.wrap("export", s.exportEndpoint), decodeExport))
	r.Get("/messages", kit.HTTPHandler(s.wrap("messages", s.messagesEndpoint), noRequest))
	r.Post("/render", kit.HTTPHandler(s.wrap("render", s.renderEndpoint), decodeJSON[RenderRequest]))
	r.Post("/load", kit.HTTPHandler(s.wrap("load", s.loadEndpoint), decodeLoad))

	if mcpSrv != nil {
		h := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		r.Handle("/mcp", h)
		r.Handle("/mcp/*", h)
	}
	return r
}

func noRequest(*http.Request) (any, error) { return nil, nil }

func decodeJSON[T any](r *http.Request) (any, error) {
	var v T
	if r.ContentLength == 0 {
		return &v, nil
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	return &v, nil
}

// decodeExport reads a JSON body, or index/control/mode query parameters.
func decodeExport(r *http.Request) (any, error) {
	v, err := decodeJSON[ExportRequest](r)
	if err != nil {
		return nil, err
	}
	req := v.(*ExportRequest)
	q := r.URL.Query()
	if s := q.Get("index"); s != "" {
		i, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		req.Index = &i
	}
	if c := q.Get("control"); c != "" {
		req.Control = c
	}
	if m := q.Get("mode"); m != "" {
		req.Mode = m
	}
	return req, nil
}

// decodeLoad accepts JSON, or a raw text/html body with ?url=.
func decodeLoad(r *http.Request) (any, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/html") {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			return nil, err
		}
		return &LoadRequest{URL: r.URL.Query().Get("url"), HTML: string(body)}, nil
	}
	return decodeJSON[LoadRequest](r)
}
