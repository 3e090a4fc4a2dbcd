package llmcall

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/spires/internal/providers"
)

func TestFromChatResult(t *testing.T) {
	if FromChatResult(nil, RecordOptions{}) != nil {
		t.Fatal("expected nil for nil result")
	}

	temp := 0.6
	call := FromChatResult(&providers.ChatResult{
		Content:          "name: BRCA1",
		PromptTokens:     40,
		CompletionTokens: 5,
		CostUSD:          0.001,
		TotalTime:        1500 * time.Millisecond,
		Provider:         "openai",
		ModelUsed:        "gpt-4o",
		Success:          true,
	}, RecordOptions{
		Operation:   "extract",
		Template:    "mendelian_disease",
		Class:       "Gene",
		PromptKey:   "spires.extract",
		Temperature: &temp,
	})

	if call.ID == "" {
		t.Error("expected generated ID")
	}
	if call.LatencyMs != 1500 {
		t.Errorf("LatencyMs = %d, want 1500", call.LatencyMs)
	}
	if call.Class != "Gene" || call.Template != "mendelian_disease" {
		t.Errorf("unexpected context: %+v", call)
	}
	if call.Temperature == nil || *call.Temperature != 0.6 {
		t.Errorf("Temperature = %v", call.Temperature)
	}
	if call.Error != "" {
		t.Errorf("Error = %q, want empty", call.Error)
	}

	failed := FromChatResult(&providers.ChatResult{ErrorMessage: "boom"}, RecordOptions{})
	if failed.Success || failed.Error != "boom" {
		t.Errorf("failed call = %+v", failed)
	}
}

func TestFromCacheHit(t *testing.T) {
	call := FromCacheHit("payload", RecordOptions{Class: "Disease"})
	if !call.CacheHit || !call.Success || call.Provider != "cache" || call.Response != "payload" {
		t.Errorf("unexpected cache hit call: %+v", call)
	}
}

type memorySink struct {
	calls []*Call
	err   error
}

func (m *memorySink) Write(_ context.Context, c *Call) error {
	m.calls = append(m.calls, c)
	return m.err
}

func TestRecorder(t *testing.T) {
	t.Run("fans out to sinks", func(t *testing.T) {
		a, b := &memorySink{}, &memorySink{err: errors.New("down")}
		r := NewRecorder(nil, a, b, LogSink{})

		r.Record(context.Background(), &providers.ChatResult{Content: "x", Success: true}, RecordOptions{PromptKey: "k"})

		if len(a.calls) != 1 || len(b.calls) != 1 {
			t.Fatalf("sinks got %d and %d calls, want 1 each", len(a.calls), len(b.calls))
		}
		if a.calls[0].PromptKey != "k" {
			t.Errorf("PromptKey = %q", a.calls[0].PromptKey)
		}
	})

	t.Run("nil recorder is a no-op", func(t *testing.T) {
		var r *Recorder
		r.Record(context.Background(), &providers.ChatResult{}, RecordOptions{})
		r.RecordCall(context.Background(), &Call{})
	})

	t.Run("nil call skipped", func(t *testing.T) {
		s := &memorySink{}
		NewRecorder(nil, s).RecordCall(context.Background(), nil)
		if len(s.calls) != 0 {
			t.Error("expected nil call to be skipped")
		}
	})
}

func TestBuildListQuery(t *testing.T) {
	t.Run("no filter", func(t *testing.T) {
		q, args := buildListQuery(QueryFilter{})
		if strings.Contains(q, "WHERE") {
			t.Errorf("unexpected WHERE in %q", q)
		}
		if len(args) != 0 {
			t.Errorf("args = %v", args)
		}
	})

	t.Run("numbered placeholders", func(t *testing.T) {
		ok := true
		after := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		q, args := buildListQuery(QueryFilter{
			Template: "traits",
			Class:    "Trait",
			Success:  &ok,
			After:    &after,
			Limit:    10,
			Offset:   5,
		})

		want := "WHERE template = $1 AND class = $2 AND success = $3 AND ts > $4 ORDER BY ts DESC LIMIT $5 OFFSET $6"
		if !strings.HasSuffix(q, want) {
			t.Errorf("query = %q, want suffix %q", q, want)
		}
		if len(args) != 6 || args[0] != "traits" || args[4] != 10 || args[5] != 5 {
			t.Errorf("args = %v", args)
		}
	})
}

func TestNewPostgresSink_BadDSN(t *testing.T) {
	if _, err := NewPostgresSink(context.Background(), "://not-a-dsn"); err == nil {
		t.Error("expected error for invalid DSN")
	}
}
