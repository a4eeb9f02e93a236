package mcpserver

import (
	"context"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/devricklin/keyword-forwarder/internal/biz/domain"
	"github.com/devricklin/keyword-forwarder/internal/biz/repo"
)

const defaultListLimit = 20

// ForwarderMCPServer exposes read-only forwarder tools over MCP
type ForwarderMCPServer struct {
	server  *mcp.Server
	matcher *domain.KeywordMatcher
	store   repo.FingerprintRepo
	sources []string
}

// NewServer creates a new forwarder MCP server
func NewServer(matcher *domain.KeywordMatcher, store repo.FingerprintRepo, sources []string) *ForwarderMCPServer {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "keyword-forwarder",
		Version: "v1.0.0",
	}, nil)

	s := &ForwarderMCPServer{
		server:  server,
		matcher: matcher,
		store:   store,
		sources: sources,
	}
	s.registerTools()
	return s
}

// registerTools registers all forwarder MCP tools
func (s *ForwarderMCPServer) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forwarder_check_text",
		Description: "Normalize a text, compute its fingerprint and report which keyword it matches and whether it was already forwarded from each source.",
	}, s.handleCheckText)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forwarder_list_forwarded",
		Description: "List the most recently forwarded fingerprints, newest first. Optionally restricted to one source chat.",
	}, s.handleListForwarded)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "forwarder_stats",
		Description: "Get the total number of forwarded records and the configured keywords and sources.",
	}, s.handleStats)
}

// CheckTextInput is the input for check_text tool
type CheckTextInput struct {
	Text string `json:"text" jsonschema:"The message text to check"`
}

// CheckTextOutput is the output for check_text tool
type CheckTextOutput struct {
	Normalized  string   `json:"normalized"`
	Fingerprint string   `json:"fingerprint"`
	Matched     bool     `json:"matched"`
	Keyword     string   `json:"keyword,omitempty"`
	ForwardedIn []string `json:"forwarded_in,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func (s *ForwarderMCPServer) handleCheckText(ctx context.Context, req *mcp.CallToolRequest, input CheckTextInput) (*mcp.CallToolResult, CheckTextOutput, error) {
	normalized := domain.Normalize(input.Text)
	out := CheckTextOutput{
		Normalized:  normalized,
		Fingerprint: domain.FingerprintOf(normalized).String(),
	}
	if normalized == "" {
		return nil, out, nil
	}
	out.Keyword, out.Matched = s.matcher.Match(normalized)

	fp := domain.FingerprintOf(normalized)
	for _, sourceID := range s.sources {
		exists, err := s.store.Exists(ctx, sourceID, fp)
		if err != nil {
			out.Error = err.Error()
			return nil, out, nil
		}
		if exists {
			out.ForwardedIn = append(out.ForwardedIn, sourceID)
		}
	}
	return nil, out, nil
}

// ListForwardedInput specifies which records to list
type ListForwardedInput struct {
	SourceID string `json:"source_id,omitempty" jsonschema:"Source chat id; all configured sources when empty"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Maximum number of records to return (default 20)"`
}

// ForwardedRecord is a forwarded record as returned by the tools
type ForwardedRecord struct {
	SourceID    string    `json:"source_id"`
	Fingerprint string    `json:"fingerprint"`
	MessageID   string    `json:"message_id"`
	ForwardedAt time.Time `json:"forwarded_at"`
}

// ListForwardedOutput contains forwarded records
type ListForwardedOutput struct {
	Records []ForwardedRecord `json:"records"`
	Error   string            `json:"error,omitempty"`
}

func (s *ForwarderMCPServer) handleListForwarded(ctx context.Context, req *mcp.CallToolRequest, input ListForwardedInput) (*mcp.CallToolResult, ListForwardedOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	sources := s.sources
	if input.SourceID != "" {
		sources = []string{input.SourceID}
	}

	out := ListForwardedOutput{Records: []ForwardedRecord{}}
	for _, sourceID := range sources {
		records, err := s.store.ListRecent(ctx, sourceID, limit)
		if err != nil {
			return nil, ListForwardedOutput{Error: err.Error()}, nil
		}
		for _, rec := range records {
			out.Records = append(out.Records, ForwardedRecord{
				SourceID:    rec.SourceID,
				Fingerprint: rec.Fingerprint.String(),
				MessageID:   rec.MessageID,
				ForwardedAt: rec.ForwardedAt,
			})
		}
	}

	sort.SliceStable(out.Records, func(i, j int) bool {
		return out.Records[i].ForwardedAt.After(out.Records[j].ForwardedAt)
	})
	if len(out.Records) > limit {
		out.Records = out.Records[:limit]
	}
	return nil, out, nil
}

// StatsInput is empty - no input needed
type StatsInput struct{}

// StatsOutput contains store statistics
type StatsOutput struct {
	Total     int64    `json:"total"`
	Keywords  []string `json:"keywords"`
	MatchMode string   `json:"match_mode"`
	Sources   []string `json:"sources"`
	Error     string   `json:"error,omitempty"`
}

func (s *ForwarderMCPServer) handleStats(ctx context.Context, req *mcp.CallToolRequest, input StatsInput) (*mcp.CallToolResult, StatsOutput, error) {
	out := StatsOutput{
		Keywords:  s.matcher.Keywords(),
		MatchMode: string(s.matcher.Mode()),
		Sources:   s.sources,
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		out.Error = err.Error()
		return nil, out, nil
	}
	out.Total = total
	return nil, out, nil
}

// Run starts the MCP server with stdio transport
func (s *ForwarderMCPServer) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// GetServer returns the underlying MCP server
func (s *ForwarderMCPServer) GetServer() *mcp.Server {
	return s.server
}
