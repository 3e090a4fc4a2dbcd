package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/spires/internal/api"
	"github.com/jackzampolin/spires/internal/spires"
)

// resultFlags choose where extraction results go.
type resultFlags struct {
	format string
	file   string
}

func addResultFlags(cmd *cobra.Command, f *resultFlags) {
	cmd.Flags().StringVarP(&f.format, "output-format", "O", "yaml", "result format: yaml, json, jsonl or md")
	cmd.Flags().StringVarP(&f.file, "output-file", "f", "", "write results to this file instead of stdout")
}

// resultWriter writes extraction results in one format.
type resultWriter struct {
	w      io.Writer
	format api.OutputFormat
	close  func() error
}

func (f *resultFlags) open(cmd *cobra.Command) (*resultWriter, error) {
	format, err := api.ParseResultFormat(f.format)
	if err != nil {
		return nil, err
	}
	rw := &resultWriter{w: cmd.OutOrStdout(), format: format, close: func() error { return nil }}
	if f.file != "" {
		out, err := os.Create(f.file)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", f.file, err)
		}
		rw.w = out
		rw.close = out.Close
	}
	return rw, nil
}

func (rw *resultWriter) Write(res *spires.ExtractionResult) error {
	return api.WriteResult(rw.w, rw.format, res)
}

func (rw *resultWriter) Close() error {
	return rw.close()
}
