package main

import (
	"context"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/spires/internal/mcpserver"
	"github.com/jackzampolin/spires/internal/spires"
	"github.com/jackzampolin/spires/version"
)

var (
	mcpEngine engineFlags
	mcpModel  modelFlags
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve extraction tools over the Model Context Protocol (stdio)",
	Long: `Run an MCP server on standard input and output exposing the extract,
generate_extract, parse_completion and list_templates tools. --template sets
the template used when a tool call names none.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		client, err := a.completionClient(ctx, &mcpModel)
		if err != nil {
			return err
		}
		opts := a.completeOptions(cmd, &mcpModel)

		var mu sync.Mutex
		engines := make(map[string]*spires.Engine)
		factory := func(_ context.Context, template string) (*spires.Engine, error) {
			mu.Lock()
			defer mu.Unlock()
			if eng, ok := engines[template]; ok {
				return eng, nil
			}
			s, err := a.loadSchema(template)
			if err != nil {
				return nil, err
			}
			eng, err := a.newEngine(cmd, s, client, &mcpEngine, opts)
			if err != nil {
				return nil, err
			}
			engines[template] = eng
			return eng, nil
		}

		defaultTemplate := mcpEngine.template
		if defaultTemplate == "" {
			defaultTemplate = a.cfg.Defaults.Template
		}
		srv, err := mcpserver.New(mcpserver.Config{
			Engines:         factory,
			DefaultTemplate: defaultTemplate,
			Version:         version.GitRelease,
			Logger:          a.logger,
		})
		if err != nil {
			return err
		}
		return srv.Run(ctx)
	},
}

func init() {
	addEngineFlags(mcpCmd, &mcpEngine)
	addModelFlags(mcpCmd, &mcpModel)
	rootCmd.AddCommand(mcpCmd)
}
