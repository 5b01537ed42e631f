package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/kiosque/board/internal/journal"
	"github.com/hazyhaar/kiosque/kit"
)

// RegisterMCP registers all kiosque tools on an MCP server.
func (svc *Service) RegisterMCP(srv *mcp.Server) {
	svc.registerCurrent(srv)
	svc.registerHistory(srv)
	svc.registerEvents(srv)
	svc.registerRun(srv)
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func mcpCtx(ctx context.Context) context.Context {
	return kit.WithTransport(ctx, "mcp")
}

func (svc *Service) registerCurrent(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
	}

	tool := &mcp.Tool{
		Name:        "kiosque_current",
		Description: "Get the current front-page hero for a source",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string", "description": "Source ID"},
		}, []string{"source_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if !svc.knownSource(p.SourceID) {
			return nil, fmt.Errorf("unknown source %q", p.SourceID)
		}
		run, err := svc.journal.CurrentFor(ctx, p.SourceID)
		if errors.Is(err, journal.ErrNotFound) {
			return nil, errors.New("no observations yet")
		}
		return run, err
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: mcpCtx}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerHistory(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		Limit    int    `json:"limit"`
	}

	tool := &mcp.Tool{
		Name:        "kiosque_history",
		Description: "Get the hero residency timeline for a source",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string", "description": "Source ID"},
			"limit":     map[string]any{"type": "integer", "description": "Max entries, newest first (default 50)"},
		}, []string{"source_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if !svc.knownSource(p.SourceID) {
			return nil, fmt.Errorf("unknown source %q", p.SourceID)
		}
		return svc.journal.HistoryFor(ctx, p.SourceID, p.Limit)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: mcpCtx}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerEvents(srv *mcp.Server) {
	type req struct {
		SourceID string `json:"source_id"`
		Since    int64  `json:"since"`
	}

	tool := &mcp.Tool{
		Name:        "kiosque_events",
		Description: "Get ranked-list change events for a source since a timestamp",
		InputSchema: inputSchema(map[string]any{
			"source_id": map[string]any{"type": "string", "description": "Source ID"},
			"since":     map[string]any{"type": "integer", "description": "Unix ms lower bound (0 = all)"},
		}, []string{"source_id"}),
	}

	endpoint := func(ctx context.Context, r any) (any, error) {
		p := r.(*req)
		if !svc.knownSource(p.SourceID) {
			return nil, fmt.Errorf("unknown source %q", p.SourceID)
		}
		return svc.journal.EventsSince(ctx, p.SourceID, p.Since)
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var p req
		if err := json.Unmarshal(r.Params.Arguments, &p); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &p, EnrichCtx: mcpCtx}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

func (svc *Service) registerRun(srv *mcp.Server) {
	type req struct{}

	tool := &mcp.Tool{
		Name:        "kiosque_run",
		Description: "Trigger an immediate sweep of all sources",
		InputSchema: inputSchema(map[string]any{}, nil),
	}

	endpoint := func(ctx context.Context, _ any) (any, error) {
		if svc.running.Load() {
			return map[string]string{"status": "busy"}, nil
		}
		go func() {
			if err := svc.RunOnce(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrBusy) {
				svc.logger.Error("board: triggered sweep", "error", err)
			}
		}()
		return map[string]string{"status": "started"}, nil
	}

	decode := func(r *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		return &kit.MCPDecodeResult{Request: &req{}, EnrichCtx: mcpCtx}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
