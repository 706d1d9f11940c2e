// Package agent provides the single-purpose agents the orchestrator routes
// work to: data specialists that answer from cached or freshly fetched
// provider data, and the writer that turns their output into a report.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShayCichocki/finsight/internal/insight"
	"github.com/ShayCichocki/finsight/internal/llm"
	"github.com/ShayCichocki/finsight/internal/protocol"
	"github.com/ShayCichocki/finsight/internal/tools"
	"github.com/ShayCichocki/finsight/pkg/models"
)

// Fixed replies.
const (
	// CannotDetermineSubject is returned when no ticker symbol can be
	// extracted from the request.
	CannotDetermineSubject = "I couldn't determine which company or stock symbol you're asking about. Please mention a company name or ticker symbol."
	// OffTopicRefusal is the reply the answer rules require for requests
	// unrelated to financial markets.
	OffTopicRefusal = "I'm sorry, I can only assist with financial market-related queries."
)

// answerWordLimit bounds the specialist's final answer.
const answerWordLimit = 150

// industryInsightLimit caps how many industry notes join a synthesis prompt.
const industryInsightLimit = 3

// Specialist is anything the orchestrator can route a sub-task to.
type Specialist interface {
	Name() string
	Role() string
	// ProcessUserInput answers text. It never fails; backend problems are
	// reported inside the returned text.
	ProcessUserInput(ctx context.Context, text string) string
}

// Describe returns the routing identity of s.
func Describe(s Specialist) models.SpecialistDescriptor {
	return models.SpecialistDescriptor{Name: s.Name(), Role: s.Role()}
}

// SpecialistConfig configures a DataSpecialist.
type SpecialistConfig struct {
	Name         string
	Role         string
	SystemPrompt string
	// Subject names what the synthesis produces, e.g. "market summary".
	Subject string
	// Brief is extra synthesis guidance appended after the subject line.
	Brief string
	Model llm.Model
	// Cache is the topic shelf the specialist reads and fills.
	Cache *insight.Cache
	// Window is how old a cached insight may be and still count as a hit.
	Window time.Duration
	// Tools are invoked in this order on a cache miss.
	Tools []tools.Tool
	// IndustryCache, when set, contributes recent industry notes.
	IndustryCache *insight.Cache
	HistorySize   int
	Logger        *zap.Logger
}

// DataSpecialist answers questions about one ticker symbol. Each request
// runs extraction, a cache check, synthesis on a miss, and a final answer.
type DataSpecialist struct {
	name          string
	role          string
	systemPrompt  string
	subject       string
	brief         string
	model         llm.Model
	cache         *insight.Cache
	window        time.Duration
	tools         []tools.Tool
	industryCache *insight.Cache
	history       *History
	logger        *zap.Logger
}

// NewDataSpecialist creates a specialist from cfg.
func NewDataSpecialist(cfg SpecialistConfig) (*DataSpecialist, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, errors.New("specialist name is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("specialist %q: model is required", cfg.Name)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "market summary"
	}

	return &DataSpecialist{
		name:          cfg.Name,
		role:          cfg.Role,
		systemPrompt:  cfg.SystemPrompt,
		subject:       subject,
		brief:         cfg.Brief,
		model:         cfg.Model,
		cache:         cfg.Cache,
		window:        cfg.Window,
		tools:         append([]tools.Tool(nil), cfg.Tools...),
		industryCache: cfg.IndustryCache,
		history:       NewHistory(cfg.HistorySize),
		logger:        logger.With(zap.String("agent", cfg.Name)),
	}, nil
}

// Name returns the routing name.
func (s *DataSpecialist) Name() string { return s.name }

// Role returns the role description shown to the planner.
func (s *DataSpecialist) Role() string { return s.role }

// History returns the specialist's conversation history.
func (s *DataSpecialist) History() *History { return s.history }

// Entities is what extraction found in a request.
type Entities struct {
	Symbol   string
	Exchange string
	Industry string
}

// ProcessUserInput answers text about a single symbol.
func (s *DataSpecialist) ProcessUserInput(ctx context.Context, text string) string {
	ent, placeholder, ok := s.extract(ctx, text)
	if !ok {
		return placeholder
	}
	if ent.Symbol == "" {
		s.logger.Debug("no symbol extracted", zap.String("input", text))
		return CannotDetermineSubject
	}

	summary, hit := s.summary(ctx, ent)
	s.logger.Debug("summary ready",
		zap.String("symbol", ent.Symbol),
		zap.Bool("cache_hit", hit),
	)

	answer, _ := s.call(ctx, s.answerPrompt(summary, text))
	return answer
}

// extract asks the model for the symbol, exchange and industry. When the
// model call fails it returns the placeholder reply and ok=false.
func (s *DataSpecialist) extract(ctx context.Context, text string) (Entities, string, bool) {
	reply, ok := s.call(ctx, extractionPrompt(text))
	if !ok {
		return Entities{}, reply, false
	}

	tags := protocol.ParseTags(reply)
	return Entities{
		Symbol:   normalizeSymbol(tags["symbol"]),
		Exchange: cleanEntity(tags["exchange"]),
		Industry: cleanEntity(tags["industry"]),
	}, "", true
}

// summary returns the cached insight for the symbol, or synthesizes one.
func (s *DataSpecialist) summary(ctx context.Context, ent Entities) (string, bool) {
	synth := func() (string, bool) {
		return s.synthesize(ctx, ent)
	}
	if s.cache == nil {
		text, _ := synth()
		return text, false
	}
	return s.cache.Fill(ent.Symbol, s.window, synth)
}

// synthesize gathers tool data and asks the model for a summary.
func (s *DataSpecialist) synthesize(ctx context.Context, ent Entities) (string, bool) {
	var b strings.Builder
	fmt.Fprintf(&b, "Provide a comprehensive %s for the stock symbol: %s.", s.subject, ent.Symbol)
	if s.brief != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(s.brief))
	}

	for _, t := range s.tools {
		res := t.Invoke(ctx, ent.Symbol)
		if res.Empty() {
			s.logger.Debug("tool returned nothing",
				zap.String("tool", t.Name()),
				zap.String("symbol", ent.Symbol),
				zap.Error(res.Err),
			)
			continue
		}
		fmt.Fprintf(&b, "\nData from %s: %s", t.Name(), res.JSON())
	}

	if ent.Industry != "" && s.industryCache != nil {
		for _, ins := range s.industryCache.Recent(ent.Industry, s.window, industryInsightLimit) {
			fmt.Fprintf(&b, "\nIndustry insight (%s): %s", ins.Key, ins.Text)
		}
	}

	return s.call(ctx, b.String())
}

func (s *DataSpecialist) answerPrompt(summary, text string) string {
	return fmt.Sprintf(`Based on the following %s, analyze the user input and provide a short answer to the user query.

Summary:
%s

Rules:
- If the user input is related to stock performance, base your answer on the summary.
- If the user input is unrelated to financial markets, respond with "%s"
- Keep the response concise and relevant to the user's query.
- Use a professional and informative tone suitable for financial discussions.
- Limit the response to %d words.

User Input: "%s"

Answer:`, s.subject, summary, OffTopicRefusal, answerWordLimit, text)
}

// call runs one model request, recording both sides in the history.
// A failed request yields the placeholder and ok=false.
func (s *DataSpecialist) call(ctx context.Context, prompt string) (string, bool) {
	return generate(ctx, s.model, s.name, s.systemPrompt, prompt, s.history, s.logger)
}

func generate(ctx context.Context, model llm.Model, name, system, prompt string, history *History, logger *zap.Logger) (string, bool) {
	history.Append(prompt)

	reply, err := model.Generate(ctx, system, prompt)
	ok := err == nil
	if !ok {
		logger.Warn("model call failed, using placeholder",
			zap.String("model", model.ModelID()),
			zap.Error(err),
		)
		reply = llm.Placeholder(name, model.ModelID(), prompt)
	}

	history.Append(reply)
	return reply, ok
}

func extractionPrompt(text string) string {
	return fmt.Sprintf(`Determine the entities in the following user input related to financial markets and stock analysis.
If the input names a company, return its ticker symbol: for Apple Inc return AAPL, for Microsoft Corporation return MSFT.
Leave a tag empty when the input does not mention it.
User Input: "%s"
Extracted Entities:
<SYMBOL>...</SYMBOL>
<EXCHANGE>...</EXCHANGE><INDUSTRY>...</INDUSTRY>`, text)
}

// normalizeSymbol upper-cases a ticker and drops template placeholders.
func normalizeSymbol(raw string) string {
	sym := strings.ToUpper(cleanEntity(raw))
	sym = strings.TrimPrefix(sym, "$")
	if strings.ContainsAny(sym, " \t\n") {
		return ""
	}
	return sym
}

// cleanEntity trims an extracted value and maps placeholders to "".
func cleanEntity(raw string) string {
	v := strings.TrimSpace(raw)
	switch strings.ToUpper(v) {
	case "", "...", "N/A", "NA", "NONE", "UNKNOWN", "NULL":
		return ""
	}
	return v
}
