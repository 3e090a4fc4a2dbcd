// Package mcpserver exposes extraction as Model Context Protocol tools over
// stdio.
package mcpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jackzampolin/spires/internal/api"
	"github.com/jackzampolin/spires/internal/schema"
	"github.com/jackzampolin/spires/internal/spires"
)

// EngineFactory builds an engine for a template name or path.
type EngineFactory func(ctx context.Context, template string) (*spires.Engine, error)

// Config configures a Server.
type Config struct {
	Engines EngineFactory
	// DefaultTemplate is used when a call names no template.
	DefaultTemplate string
	Version         string
	Logger          *slog.Logger
}

// Server is the MCP tool server.
type Server struct {
	engines         EngineFactory
	defaultTemplate string
	logger          *slog.Logger
	mcp             *mcp.Server
}

// ExtractInput is the argument of the extract tool.
type ExtractInput struct {
	Text     string `json:"text"`
	Template string `json:"template,omitempty"`
	Class    string `json:"class,omitempty"`
}

// GenerateInput is the argument of the generate_extract tool.
type GenerateInput struct {
	Entity   string `json:"entity"`
	Template string `json:"template,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// ParseInput is the argument of the parse_completion tool.
type ParseInput struct {
	Payload  string `json:"payload"`
	Template string `json:"template,omitempty"`
	Class    string `json:"class,omitempty"`
}

// ListInput is the (empty) argument of the list_templates tool.
type ListInput struct{}

// New creates a server and registers its tools.
func New(cfg Config) (*Server, error) {
	if cfg.Engines == nil {
		return nil, errors.New("mcpserver: engine factory is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}

	s := &Server{
		engines:         cfg.Engines,
		defaultTemplate: cfg.DefaultTemplate,
		logger:          cfg.Logger,
		mcp:             mcp.NewServer(&mcp.Implementation{Name: "spires", Version: cfg.Version}, nil),
	}

	templateProp := &jsonschema.Schema{Type: "string", Description: "embedded template name or template file path"}
	classProp := &jsonschema.Schema{Type: "string", Description: "target class; defaults to the template root"}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "extract",
		Description: "Extract a structured object from text using a template.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text":     {Type: "string", Description: "input text"},
				"template": templateProp,
				"class":    classProp,
			},
			Required: []string{"text"},
		},
	}, s.handleExtract)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "generate_extract",
		Description: "Generate a description of an entity, then extract from it.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"entity":   {Type: "string", Description: "entity name or CURIE"},
				"template": templateProp,
				"prompt":   {Type: "string", Description: "generation prompt using {entity}"},
			},
			Required: []string{"entity"},
		},
	}, s.handleGenerate)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "parse_completion",
		Description: "Parse and ground an existing model completion without calling the model.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"payload":  {Type: "string", Description: "raw completion text"},
				"template": templateProp,
				"class":    classProp,
			},
			Required: []string{"payload"},
		},
	}, s.handleParse)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_templates",
		Description: "List the embedded extraction templates.",
		InputSchema: &jsonschema.Schema{Type: "object"},
	}, s.handleListTemplates)

	return s, nil
}

// Run serves over stdin/stdout until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) engine(ctx context.Context, template string) (*spires.Engine, error) {
	if template == "" {
		template = s.defaultTemplate
	}
	if template == "" {
		return nil, errors.New("no template given and no default configured")
	}
	return s.engines(ctx, template)
}

func (s *Server) handleExtract(ctx context.Context, _ *mcp.CallToolRequest, in ExtractInput) (*mcp.CallToolResult, any, error) {
	if in.Text == "" {
		return nil, nil, errors.New("text is required")
	}
	eng, err := s.engine(ctx, in.Template)
	if err != nil {
		return nil, nil, err
	}
	cls, err := eng.RootClassOrNamed(in.Class)
	if err != nil {
		return nil, nil, err
	}
	res, err := eng.ExtractFromText(ctx, in.Text, spires.ExtractOptions{Class: cls, InputID: "mcp"})
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}
	return resultText(res)
}

func (s *Server) handleGenerate(ctx context.Context, _ *mcp.CallToolRequest, in GenerateInput) (*mcp.CallToolResult, any, error) {
	if in.Entity == "" {
		return nil, nil, errors.New("entity is required")
	}
	eng, err := s.engine(ctx, in.Template)
	if err != nil {
		return nil, nil, err
	}
	res, err := eng.GenerateAndExtract(ctx, in.Entity, in.Prompt, spires.ExtractOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("generate_extract: %w", err)
	}
	return resultText(res)
}

func (s *Server) handleParse(ctx context.Context, _ *mcp.CallToolRequest, in ParseInput) (*mcp.CallToolResult, any, error) {
	if in.Payload == "" {
		return nil, nil, errors.New("payload is required")
	}
	eng, err := s.engine(ctx, in.Template)
	if err != nil {
		return nil, nil, err
	}
	cls, err := eng.RootClassOrNamed(in.Class)
	if err != nil {
		return nil, nil, err
	}
	res, err := eng.ParseCompletion(ctx, in.Payload, cls, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("parse_completion: %w", err)
	}
	return resultText(res)
}

func (s *Server) handleListTemplates(_ context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, any, error) {
	infos, err := schema.Templates()
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := api.OutputTo(&buf, api.OutputFormatYAML, infos); err != nil {
		return nil, nil, err
	}
	return textResult(buf.String()), nil, nil
}

func resultText(res *spires.ExtractionResult) (*mcp.CallToolResult, any, error) {
	var buf bytes.Buffer
	if err := api.WriteResult(&buf, api.OutputFormatYAML, res); err != nil {
		return nil, nil, err
	}
	return textResult(buf.String()), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}
