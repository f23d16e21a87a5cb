package mcp

import (
	"context"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lazypower/recall/internal/engine"
	"github.com/lazypower/recall/internal/errs"
	"github.com/lazypower/recall/internal/insight"
)

// QueryInput is the input of query_memory.
type QueryInput struct {
	Query      string `json:"query" jsonschema:"the conversation text to find relevant insights for"`
	MaxResults int    `json:"max_results,omitempty" jsonschema:"maximum number of insights to return (default 5)"`
}

// InsightOutput is one retrieved insight.
type InsightOutput struct {
	ID            string   `json:"id"`
	Content       string   `json:"content"`
	Type          string   `json:"insight_type"`
	Entities      []string `json:"entities"`
	Layer         string   `json:"layer"`
	Effectiveness float64  `json:"effectiveness_score"`
	Score         float64  `json:"final_score"`
	AgeDays       int      `json:"age_days"`
}

// QueryOutput is the output of query_memory.
type QueryOutput struct {
	Triggers []string        `json:"triggers"`
	Insights []InsightOutput `json:"insights"`
	Total    int             `json:"total"`
	Markdown string          `json:"markdown"`
}

// AddInput is the input of add_insight.
type AddInput struct {
	Content       string   `json:"content" jsonschema:"the insight text"`
	Entities      []string `json:"entities,omitempty" jsonschema:"topic entities the insight is about"`
	Themes        []string `json:"themes,omitempty" jsonschema:"theme tags"`
	Type          string   `json:"insight_type,omitempty" jsonschema:"anchor, breakthrough, strategy or observation"`
	Effectiveness *float64 `json:"effectiveness_score,omitempty" jsonschema:"0 to 1; computed from the content when omitted"`
}

// AddOutput is the output of add_insight.
type AddOutput struct {
	ID string `json:"id"`
}

// DetectInput is the input of detect_conversation_insights.
type DetectInput struct {
	ConversationText string `json:"conversation_text" jsonschema:"conversation text to scan for insights worth saving"`
}

// CandidateOutput is one suggested insight.
type CandidateOutput struct {
	Content  string   `json:"content"`
	Type     string   `json:"insight_type"`
	Entities []string `json:"entities"`
	Themes   []string `json:"themes"`
}

// DetectOutput is the output of detect_conversation_insights.
type DetectOutput struct {
	Candidates []CandidateOutput `json:"candidates"`
	Suggestion string            `json:"suggestion"`
}

// StatusInput is the (empty) input of get_memory_status.
type StatusInput struct{}

// EntityCount is the number of insights tagged with an entity.
type EntityCount struct {
	Entity string `json:"entity"`
	Count  int    `json:"count"`
}

// StatusOutput is the output of get_memory_status.
type StatusOutput struct {
	TotalInsights int           `json:"total_insights"`
	SchemaVersion int           `json:"schema_version"`
	Entities      []EntityCount `json:"entities"`
	OpenConns     int           `json:"open_connections"`
	InUseConns    int           `json:"in_use_connections"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "query_memory",
		Description: "Retrieve stored insights relevant to the current conversation, grouped by disclosure tier",
	}, s.handleQuery)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "add_insight",
		Description: "Store a new insight",
	}, s.handleAdd)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "detect_conversation_insights",
		Description: "Find statements in a conversation that are worth saving as insights, without storing them",
	}, s.handleDetect)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_memory_status",
		Description: "Report how many insights are stored and for which entities",
	}, s.handleStatus)
}

func (s *Server) handleQuery(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (*mcp.CallToolResult, QueryOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, QueryOutput{}, errs.Validation("query_memory", "query is required")
	}
	limit := in.MaxResults
	if limit > s.maxResults {
		limit = s.maxResults
	}

	res, err := s.engine.Retrieve(ctx, in.Query, limit)
	if err != nil {
		return nil, QueryOutput{}, err
	}

	out := QueryOutput{
		Triggers: res.Triggers,
		Insights: make([]InsightOutput, 0, res.Total()),
		Total:    res.Total(),
		Markdown: engine.FormatMarkdown(res.Tiers),
	}
	if out.Triggers == nil {
		out.Triggers = []string{}
	}
	for _, tier := range [][]engine.Scored{res.Surface, res.Mid, res.Deep} {
		for _, sc := range tier {
			out.Insights = append(out.Insights, InsightOutput{
				ID:            sc.ID,
				Content:       sc.Content,
				Type:          string(sc.Type),
				Entities:      append([]string{}, sc.Entities...),
				Layer:         string(sc.Layer),
				Effectiveness: sc.Effectiveness,
				Score:         sc.Score,
				AgeDays:       sc.AgeDays,
			})
		}
	}
	return nil, out, nil
}

func (s *Server) handleAdd(ctx context.Context, _ *mcp.CallToolRequest, in AddInput) (*mcp.CallToolResult, AddOutput, error) {
	id, err := s.engine.Ingest(ctx, insight.Draft{
		Content:       in.Content,
		Entities:      in.Entities,
		Themes:        in.Themes,
		Type:          insight.Type(strings.ToLower(strings.TrimSpace(in.Type))),
		Effectiveness: in.Effectiveness,
		Source:        "mcp",
	})
	if err != nil {
		return nil, AddOutput{}, err
	}
	return nil, AddOutput{ID: id}, nil
}

func (s *Server) handleDetect(ctx context.Context, _ *mcp.CallToolRequest, in DetectInput) (*mcp.CallToolResult, DetectOutput, error) {
	drafts, err := s.extractor.Extract(ctx, in.ConversationText)
	if err != nil {
		return nil, DetectOutput{}, err
	}
	out := DetectOutput{
		Candidates: make([]CandidateOutput, 0, len(drafts)),
		Suggestion: engine.FormatCaptureSuggestion(drafts),
	}
	for _, d := range drafts {
		out.Candidates = append(out.Candidates, CandidateOutput{
			Content:  d.Content,
			Type:     string(d.Type),
			Entities: append([]string{}, d.Entities...),
			Themes:   append([]string{}, d.Themes...),
		})
	}
	return nil, out, nil
}

func (s *Server) handleStatus(ctx context.Context, _ *mcp.CallToolRequest, _ StatusInput) (*mcp.CallToolResult, StatusOutput, error) {
	out := StatusOutput{Entities: []EntityCount{}}
	counts := map[string]int{}
	if s.db != nil {
		total, err := s.db.Count(ctx)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		version, err := s.db.SchemaVersion(ctx)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		stats, err := s.db.EntityStats(ctx)
		if err != nil {
			return nil, StatusOutput{}, err
		}
		for _, st := range stats {
			counts[st.Entity] = st.Count
		}
		ps := s.db.Pool().Stats()
		out.TotalInsights, out.SchemaVersion = total, version
		out.OpenConns, out.InUseConns = ps.Open, ps.InUse
	}
	for _, e := range s.engine.Lexicon().Entities() {
		out.Entities = append(out.Entities, EntityCount{Entity: e, Count: counts[e]})
	}
	return nil, out, nil
}
