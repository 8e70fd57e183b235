package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	sourcesURI      = "dynetl://sources"
	schemaURIPrefix = "dynetl://schema/"
)

func (s *Server) registerResources() {
	// ── dynetl://sources ───────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		sourcesURI,
		"Ingested Sources",
		mcp.WithMIMEType("application/json"),
	), s.handleSourcesResource)

	// ── dynetl://schema/{sourceId} ─────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			schemaURIPrefix+"{sourceId}",
			"Latest Schema of a Source",
		),
		s.handleSchemaResource,
	)
}

func (s *Server) handleSourcesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	sources, err := s.schemas.Sources(ctx)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []string{}
	}
	return jsonResource(sourcesURI, sources)
}

func (s *Server) handleSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	sourceID := sourceIDFromURI(uri)
	if sourceID == "" {
		return nil, fmt.Errorf("could not extract sourceId from URI: %s", uri)
	}
	schema, err := s.schemas.Latest(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	return jsonResource(uri, schema)
}

// sourceIDFromURI extracts the source id from "dynetl://schema/{id}".
func sourceIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, schemaURIPrefix)
	if !ok {
		return ""
	}
	return strings.Trim(id, "/")
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
