package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lazypower/recall/internal/errs"
)

const insightURIPrefix = "recall://insights/"

func (s *Server) registerResources() {
	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: insightURIPrefix + "{id}",
		Name:        "insight",
		Description: "A stored insight by id",
		MIMEType:    "application/json",
	}, s.handleInsightResource)
}

func (s *Server) handleInsightResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	id := strings.TrimPrefix(uri, insightURIPrefix)
	if id == uri || id == "" {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	in, err := s.engine.Get(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode insight %s: %w", id, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
