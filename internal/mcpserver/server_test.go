package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/spires/internal/completion"
	"github.com/jackzampolin/spires/internal/schema"
	"github.com/jackzampolin/spires/internal/spires"
)

const noteTemplate = `
id: http://example.org/note
name: note
classes:
  Note:
    tree_root: true
    attributes:
      title:
        required: true
      topics:
        multivalued: true
`

func newTestServer(t *testing.T, respond func(prompt string) string) (*Server, *[]string) {
	t.Helper()
	var templates []string
	factory := func(_ context.Context, template string) (*spires.Engine, error) {
		templates = append(templates, template)
		s, err := schema.Parse([]byte(noteTemplate), nil)
		if err != nil {
			return nil, err
		}
		return spires.New(spires.Config{
			Schema: s,
			Completer: spires.CompleterFunc(func(_ context.Context, prompt string, _ completion.CompleteOptions) (string, error) {
				return respond(prompt), nil
			}),
		})
	}
	srv, err := New(Config{Engines: factory, DefaultTemplate: "note"})
	require.NoError(t, err)
	return srv, &templates
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNew_RequiresFactory(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestHandleExtract(t *testing.T) {
	srv, templates := newTestServer(t, func(string) string {
		return "title: Weekly sync\ntopics: budget; hiring"
	})

	res, _, err := srv.handleExtract(context.Background(), nil, ExtractInput{Text: "We discussed budget and hiring."})
	require.NoError(t, err)

	out := text(t, res)
	assert.True(t, strings.HasPrefix(out, "---\n"))
	assert.Contains(t, out, "title: Weekly sync")
	assert.Contains(t, out, "- budget")
	assert.Contains(t, out, "- hiring")
	assert.Equal(t, []string{"note"}, *templates)

	t.Run("explicit template", func(t *testing.T) {
		_, _, err := srv.handleExtract(context.Background(), nil, ExtractInput{Text: "x", Template: "other.yaml"})
		require.NoError(t, err)
		assert.Equal(t, "other.yaml", (*templates)[len(*templates)-1])
	})

	t.Run("missing text", func(t *testing.T) {
		_, _, err := srv.handleExtract(context.Background(), nil, ExtractInput{})
		assert.Error(t, err)
	})

	t.Run("unknown class", func(t *testing.T) {
		_, _, err := srv.handleExtract(context.Background(), nil, ExtractInput{Text: "x", Class: "Nope"})
		assert.ErrorIs(t, err, schema.ErrClassNotFound)
	})
}

func TestHandleGenerate(t *testing.T) {
	var prompts []string
	srv, _ := newTestServer(t, func(prompt string) string {
		prompts = append(prompts, prompt)
		if strings.HasPrefix(prompt, "Generate") {
			return "A retrospective covers wins and misses."
		}
		return "title: Retrospective"
	})

	res, _, err := srv.handleGenerate(context.Background(), nil, GenerateInput{Entity: "retrospective"})
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "title: Retrospective")
	require.Len(t, prompts, 2)
	assert.Equal(t, "Generate a comprehensive description of retrospective.\n", prompts[0])

	_, _, err = srv.handleGenerate(context.Background(), nil, GenerateInput{})
	assert.Error(t, err)
}

func TestHandleParse(t *testing.T) {
	called := false
	srv, _ := newTestServer(t, func(string) string {
		called = true
		return ""
	})

	res, _, err := srv.handleParse(context.Background(), nil, ParseInput{Payload: "title: Standup\ntopics: blockers"})
	require.NoError(t, err)
	assert.Contains(t, text(t, res), "title: Standup")
	assert.False(t, called)
}

func TestHandleListTemplates(t *testing.T) {
	srv, _ := newTestServer(t, func(string) string { return "" })

	res, _, err := srv.handleListTemplates(context.Background(), nil, ListInput{})
	require.NoError(t, err)
	out := text(t, res)
	assert.Contains(t, out, "name: mendelian_disease")
	assert.Contains(t, out, "root_class: MendelianDisease")
}

func TestEngine_NoDefaultTemplate(t *testing.T) {
	srv, err := New(Config{Engines: func(context.Context, string) (*spires.Engine, error) {
		return nil, errors.New("unreachable")
	}})
	require.NoError(t, err)

	_, err = srv.engine(context.Background(), "")
	assert.EqualError(t, err, "no template given and no default configured")
}
