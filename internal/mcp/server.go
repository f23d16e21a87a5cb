// Package mcp exposes recall's retrieval and ingestion as Model Context
// Protocol tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/store"
)

// ErrMissingEngine is returned by NewServer when Options.Engine is nil.
var ErrMissingEngine = errors.New("mcp: engine is required")

// Options wires a Server.
type Options struct {
	Engine     *engine.Engine
	Store      *store.Store     // optional; status reports storage details when set
	Extractor  engine.Extractor // nil uses pattern extraction
	MaxResults int              // upper bound for query_memory; 0 means 10
	Logger     *slog.Logger
	Version    string
}

// Server is the recall MCP server.
type Server struct {
	engine     *engine.Engine
	db         *store.Store
	extractor  engine.Extractor
	maxResults int
	log        *slog.Logger
	server     *mcp.Server
}

// NewServer creates a server with every tool registered.
func NewServer(opts Options) (*Server, error) {
	if opts.Engine == nil {
		return nil, ErrMissingEngine
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Extractor == nil {
		opts.Extractor = engine.NewPatternExtractor(opts.Engine.Lexicon(), 0)
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s := &Server{
		engine:     opts.Engine,
		db:         opts.Store,
		extractor:  opts.Extractor,
		maxResults: opts.MaxResults,
		log:        opts.Logger,
		server:     mcp.NewServer(&mcp.Implementation{Name: "recall", Version: opts.Version}, nil),
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is done.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	s.log.Info("mcp listening", "addr", addr)
	err := httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
