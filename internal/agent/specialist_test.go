package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/internal/tools"
	"github.com/ShayCichocki/finsight/pkg/models"
)

// stage names the step of a specialist request a prompt belongs to.
type stage string

const (
	stageExtract stage = "extract"
	stageSynth   stage = "synth"
	stageAnswer  stage = "answer"
	stageOther   stage = "other"
)

func stageOf(prompt string) stage {
	switch {
	case strings.HasPrefix(prompt, "Determine the entities"):
		return stageExtract
	case strings.HasPrefix(prompt, "Provide a comprehensive"):
		return stageSynth
	case strings.HasPrefix(prompt, "Based on the following"):
		return stageAnswer
	}
	return stageOther
}

// scriptedModel answers each stage with a fixed reply and records prompts.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[stage]string
	fail    map[stage]bool
	prompts map[stage][]string
	systems []string
}

func newScriptedModel(extract string) *scriptedModel {
	return &scriptedModel{
		replies: map[stage]string{
			stageExtract: extract,
			stageSynth:   "fresh summary",
			stageAnswer:  "final answer",
			stageOther:   "other reply",
		},
		fail:    map[stage]bool{},
		prompts: map[stage][]string{},
	}
}

func (m *scriptedModel) Generate(_ context.Context, system, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := stageOf(prompt)
	m.prompts[st] = append(m.prompts[st], prompt)
	m.systems = append(m.systems, system)
	if m.fail[st] {
		return "", errors.New("backend down")
	}
	return m.replies[st], nil
}

func (m *scriptedModel) ModelID() string { return "scripted-1" }

func (m *scriptedModel) calls(st stage) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts[st]...)
}

func (m *scriptedModel) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.prompts {
		n += len(p)
	}
	return n
}

// stubTool returns a fixed result and counts invocations.
type stubTool struct {
	name    string
	data    any
	err     error
	calls   atomic.Int32
	mu      sync.Mutex
	symbols []string
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub " + s.name }

func (s *stubTool) Invoke(_ context.Context, symbol string) tools.Result {
	s.calls.Add(1)
	s.mu.Lock()
	s.symbols = append(s.symbols, symbol)
	s.mu.Unlock()
	return tools.Result{Tool: s.name, Data: s.data, Err: s.err}
}

const appleExtraction = "<SYMBOL>aapl</SYMBOL>\n<EXCHANGE>NASDAQ</EXCHANGE><INDUSTRY>Technology</INDUSTRY>"

func newTestSpecialist(t *testing.T, model *scriptedModel, store *insight.Store, ts ...tools.Tool) *DataSpecialist {
	t.Helper()
	s, err := NewDataSpecialist(SpecialistConfig{
		Name:          "Market Research Agent",
		Role:          "market data",
		SystemPrompt:  "You are a market researcher.",
		Subject:       "market summary",
		Model:         model,
		Cache:         store.Cache(models.TopicStock),
		Window:        7 * 24 * time.Hour,
		Tools:         ts,
		IndustryCache: store.Cache(models.TopicIndustry),
	})
	if err != nil {
		t.Fatalf("NewDataSpecialist() error = %v, want nil", err)
	}
	return s
}

func TestDataSpecialist_CacheMissSynthesizesAndCaches(t *testing.T) {
	model := newScriptedModel(appleExtraction)
	store := insight.Open(insight.NewMemoryBackend())
	quote := &stubTool{name: "StockQuote", data: map[string]any{"c": 189.5}}
	broken := &stubTool{name: "FinancialScore", err: errors.New("HTTP 500")}
	empty := &stubTool{name: "IncomeStatement", data: []any{}}
	s := newTestSpecialist(t, model, store, quote, broken, empty)

	got := s.ProcessUserInput(context.Background(), "How is Apple doing?")
	if got != "final answer" {
		t.Fatalf("ProcessUserInput() = %q, want %q", got, "final answer")
	}

	for _, tool := range []*stubTool{quote, broken, empty} {
		if n := tool.calls.Load(); n != 1 {
			t.Errorf("%s invoked %d times, want 1", tool.name, n)
		}
	}
	if quote.symbols[0] != "AAPL" {
		t.Errorf("tool symbol = %q, want %q", quote.symbols[0], "AAPL")
	}

	synth := model.calls(stageSynth)
	if len(synth) != 1 {
		t.Fatalf("synthesis calls = %d, want 1", len(synth))
	}
	if !strings.Contains(synth[0], "stock symbol: AAPL") {
		t.Errorf("synthesis prompt missing symbol: %q", synth[0])
	}
	if !strings.Contains(synth[0], `Data from StockQuote: {"c":189.5}`) {
		t.Errorf("synthesis prompt missing quote data: %q", synth[0])
	}
	for _, skipped := range []string{"FinancialScore", "IncomeStatement"} {
		if strings.Contains(synth[0], "Data from "+skipped) {
			t.Errorf("synthesis prompt includes skipped tool %s", skipped)
		}
	}

	cached, ok := store.Cache(models.TopicStock).Latest("AAPL", time.Hour)
	if !ok || cached.Text != "fresh summary" {
		t.Errorf("cached insight = %+v, %v; want text %q", cached, ok, "fresh summary")
	}

	answer := model.calls(stageAnswer)
	if len(answer) != 1 || !strings.Contains(answer[0], "fresh summary") {
		t.Errorf("answer prompt does not carry the summary: %v", answer)
	}
	if !strings.Contains(answer[0], `User Input: "How is Apple doing?"`) {
		t.Errorf("answer prompt does not carry the user input: %q", answer[0])
	}

	// Three model calls, two history entries each.
	if n := s.History().Len(); n != 6 {
		t.Errorf("History().Len() = %d, want 6", n)
	}
}

func TestDataSpecialist_CacheHitSkipsTools(t *testing.T) {
	model := newScriptedModel(appleExtraction)
	store := insight.Open(insight.NewMemoryBackend())
	store.Cache(models.TopicStock).Put("AAPL", "cached summary", time.Time{})
	quote := &stubTool{name: "StockQuote", data: map[string]any{"c": 1}}
	s := newTestSpecialist(t, model, store, quote)

	got := s.ProcessUserInput(context.Background(), "What about AAPL?")
	if got != "final answer" {
		t.Fatalf("ProcessUserInput() = %q, want %q", got, "final answer")
	}
	if n := quote.calls.Load(); n != 0 {
		t.Errorf("tool invoked %d times on a cache hit, want 0", n)
	}
	if n := len(model.calls(stageSynth)); n != 0 {
		t.Errorf("synthesis calls = %d on a cache hit, want 0", n)
	}
	answer := model.calls(stageAnswer)
	if len(answer) != 1 || !strings.Contains(answer[0], "cached summary") {
		t.Errorf("answer prompt does not carry the cached summary: %v", answer)
	}
	if n := len(store.Cache(models.TopicStock).Get("AAPL", 0)); n != 1 {
		t.Errorf("cache entries = %d, want 1", n)
	}
}

func TestDataSpecialist_StaleInsightIsResynthesized(t *testing.T) {
	model := newScriptedModel(appleExtraction)
	store := insight.Open(insight.NewMemoryBackend())
	store.Cache(models.TopicStock).Put("AAPL", "old summary", time.Now().Add(-8*24*time.Hour))
	quote := &stubTool{name: "StockQuote", data: map[string]any{"c": 1}}
	s := newTestSpecialist(t, model, store, quote)

	s.ProcessUserInput(context.Background(), "AAPL outlook")

	if n := quote.calls.Load(); n != 1 {
		t.Errorf("tool invoked %d times, want 1", n)
	}
	entries := store.Cache(models.TopicStock).Get("AAPL", 0)
	if len(entries) != 2 || entries[1].Text != "fresh summary" {
		t.Errorf("entries = %+v, want old then fresh summary", entries)
	}
}

func TestDataSpecialist_NoSymbol(t *testing.T) {
	tests := []struct {
		name    string
		extract string
	}{
		{"placeholder value", "<SYMBOL>N/A</SYMBOL><EXCHANGE></EXCHANGE><INDUSTRY></INDUSTRY>"},
		{"template echo", "<SYMBOL>...</SYMBOL>"},
		{"no tags", "I cannot tell."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := newScriptedModel(tt.extract)
			store := insight.Open(insight.NewMemoryBackend())
			quote := &stubTool{name: "StockQuote", data: map[string]any{"c": 1}}
			s := newTestSpecialist(t, model, store, quote)

			got := s.ProcessUserInput(context.Background(), "hello there")
			if got != CannotDetermineSubject {
				t.Errorf("ProcessUserInput() = %q, want CannotDetermineSubject", got)
			}
			if n := model.total(); n != 1 {
				t.Errorf("model calls = %d, want 1", n)
			}
			if n := quote.calls.Load(); n != 0 {
				t.Errorf("tool invoked %d times, want 0", n)
			}
		})
	}
}

func TestDataSpecialist_ExtractionFailureReturnsPlaceholder(t *testing.T) {
	model := newScriptedModel(appleExtraction)
	model.fail[stageExtract] = true
	store := insight.Open(insight.NewMemoryBackend())
	quote := &stubTool{name: "StockQuote", data: map[string]any{"c": 1}}
	s := newTestSpecialist(t, model, store, quote)

	got := s.ProcessUserInput(context.Background(), "How is AAPL doing?")
	if !strings.HasPrefix(got, "Mock response from Market Research Agent with model 'scripted-1': ") {
		t.Errorf("ProcessUserInput() = %q, want placeholder", got)
	}
	if got == CannotDetermineSubject {
		t.Error("a failed backend must not be reported as a missing symbol")
	}
	if n := model.total(); n != 1 {
		t.Errorf("model calls = %d, want 1", n)
	}
	if n := quote.calls.Load(); n != 0 {
		t.Errorf("tool invoked %d times, want 0", n)
	}
	if n := len(store.Cache(models.TopicStock).Get("AAPL", 0)); n != 0 {
		t.Errorf("cache entries = %d, want 0", n)
	}
}

func TestDataSpecialist_FailedSynthesisNotCached(t *testing.T) {
	model := newScriptedModel(appleExtraction)
	model.fail[stageSynth] = true
	store := insight.Open(insight.NewMemoryBackend())
	s := newTestSpecialist(t, model, store)

	got := s.ProcessUserInput(context.Background(), "AAPL?")
	if got != "final answer" {
		t.Fatalf("ProcessUserInput() = %q, want %q", got, "final answer")
	}
	if n := len(store.Cache(models.TopicStock).Get("AAPL", 0)); n != 0 {
		t.Errorf("cache entries = %d after failed synthesis, want 0", n)
	}

	answer := model.calls(stageAnswer)
	if len(answer) != 1 || !strings.Contains(answer[0], "Mock response from Market Research Agent with model 'scripted-1'") {
		t.Errorf("answer prompt does not carry the placeholder summary: %v", answer)
	}
}

func TestDataSpecialist_AnswerFailureReturnsPlaceholder(t *testing.T) {
	model := newScriptedModel(appleExtraction)
	model.fail[stageAnswer] = true
	store := insight.Open(insight.NewMemoryBackend())
	s := newTestSpecialist(t, model, store)

	got := s.ProcessUserInput(context.Background(), "AAPL?")
	if !strings.HasPrefix(got, "Mock response from Market Research Agent with model 'scripted-1': Based on the following") {
		t.Errorf("ProcessUserInput() = %q, want placeholder", got)
	}
}

func TestDataSpecialist_IndustryInsights(t *testing.T) {
	model := newScriptedModel("<SYMBOL>NVDA</SYMBOL><EXCHANGE>NASDAQ</EXCHANGE><INDUSTRY>technology</INDUSTRY>")
	store := insight.Open(insight.NewMemoryBackend())
	store.Cache(models.TopicIndustry).Put("Technology", "chip demand rising", time.Time{})
	store.Cache(models.TopicIndustry).Put("Energy", "oil flat", time.Time{})
	s := newTestSpecialist(t, model, store)

	s.ProcessUserInput(context.Background(), "NVDA?")

	synth := model.calls(stageSynth)
	if len(synth) != 1 {
		t.Fatalf("synthesis calls = %d, want 1", len(synth))
	}
	if !strings.Contains(synth[0], "Industry insight (Technology): chip demand rising") {
		t.Errorf("synthesis prompt missing industry insight: %q", synth[0])
	}
	if strings.Contains(synth[0], "oil flat") {
		t.Errorf("synthesis prompt includes another industry: %q", synth[0])
	}
}

func TestDataSpecialist_NoCacheStillAnswers(t *testing.T) {
	model := newScriptedModel(appleExtraction)
	s, err := NewDataSpecialist(SpecialistConfig{Name: "Bare", Model: model})
	if err != nil {
		t.Fatalf("NewDataSpecialist() error = %v, want nil", err)
	}

	if got := s.ProcessUserInput(context.Background(), "AAPL?"); got != "final answer" {
		t.Errorf("ProcessUserInput() = %q, want %q", got, "final answer")
	}
	if n := len(model.calls(stageSynth)); n != 1 {
		t.Errorf("synthesis calls = %d, want 1", n)
	}
}

func TestNewDataSpecialist_Validation(t *testing.T) {
	model := newScriptedModel("")
	tests := []struct {
		name string
		cfg  SpecialistConfig
	}{
		{"missing name", SpecialistConfig{Model: model}},
		{"blank name", SpecialistConfig{Name: "  ", Model: model}},
		{"missing model", SpecialistConfig{Name: "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDataSpecialist(tt.cfg); err == nil {
				t.Error("NewDataSpecialist() error = nil, want error")
			}
		})
	}
}

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"aapl", "AAPL"},
		{"  msft \n", "MSFT"},
		{"$tsla", "TSLA"},
		{"BRK.B", "BRK.B"},
		{"N/A", ""},
		{"none", ""},
		{"...", ""},
		{"", ""},
		{"Apple Inc", ""},
	}
	for _, tt := range tests {
		if got := normalizeSymbol(tt.in); got != tt.want {
			t.Errorf("normalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriter_ProcessUserInput(t *testing.T) {
	model := newScriptedModel("")
	w, err := NewWriter(WriterConfig{SystemPrompt: "You write reports.", Model: model})
	if err != nil {
		t.Fatalf("NewWriter() error = %v, want nil", err)
	}
	if w.Name() != "Writer" {
		t.Errorf("Name() = %q, want %q", w.Name(), "Writer")
	}

	if got := w.ProcessUserInput(context.Background(), "collected notes"); got != "other reply" {
		t.Errorf("ProcessUserInput() = %q, want %q", got, "other reply")
	}
	if len(model.systems) != 1 || model.systems[0] != "You write reports." {
		t.Errorf("system prompts = %v, want the writer prompt once", model.systems)
	}
	if n := w.History().Len(); n != 2 {
		t.Errorf("History().Len() = %d, want 2", n)
	}

	model.fail[stageOther] = true
	got := w.ProcessUserInput(context.Background(), "collected notes")
	if got != "Mock response from Writer with model 'scripted-1': collected notes..." {
		t.Errorf("ProcessUserInput() on failure = %q, want placeholder", got)
	}
}

func TestNewWriter_RequiresModel(t *testing.T) {
	if _, err := NewWriter(WriterConfig{Name: "Writer"}); err == nil {
		t.Error("NewWriter() error = nil, want error")
	}
}
