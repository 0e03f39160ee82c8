package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"

	"voice-assistant/internal/company"
)

type Sentiment struct {
	Overall string
	Score   float64
}

const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// NeutralSentiment is returned whenever the classifier output cannot be trusted.
var NeutralSentiment = Sentiment{Overall: SentimentNeutral, Score: 0.5}

type sentimentOutput struct {
	Sentiment   string  `json:"sentiment" jsonschema:"enum=positive,enum=negative,enum=neutral"`
	Score       float64 `json:"score" jsonschema:"minimum=0,maximum=1"`
	Explanation string  `json:"explanation,omitempty"`
}

var sentimentSchema = func() string {
	r := jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}
	b, err := json.Marshal(r.Reflect(&sentimentOutput{}))
	if err != nil {
		panic(err)
	}
	return string(b)
}()

var sentimentAliases = map[string]string{
	"positive": SentimentPositive,
	"positif":  SentimentPositive,
	"negative": SentimentNegative,
	"négatif":  SentimentNegative,
	"negatif":  SentimentNegative,
	"neutral":  SentimentNeutral,
	"neutre":   SentimentNeutral,
}

var jsonObject = regexp.MustCompile(`(?s)\{.*?\}`)

const transferInstruction = `You decide whether a phone caller must be transferred to a human agent.
Answer true when the caller explicitly asks for a person, is angry, or the request cannot be handled automatically.
Answer with exactly one word: true or false.`

// NeedsTransfer asks the model whether the caller should reach a human.
// Any error or any answer other than true/false yields true.
func (r *Router) NeedsTransfer(ctx context.Context, text string) bool {
	out, err := r.Complete(ctx, r.defaultModel, CompletionRequest{
		System:      transferInstruction,
		Messages:    []Message{{Role: RoleUser, Content: text}},
		Temperature: 0.1,
		MaxTokens:   10,
	})
	if err != nil {
		r.log.WarnContext(ctx, "transfer classifier failed", "err", err)
		return true
	}
	switch strings.ToLower(strings.Trim(strings.TrimSpace(out), ".")) {
	case "false":
		return false
	case "true":
		return true
	default:
		r.log.WarnContext(ctx, "transfer classifier answer rejected", "answer", out)
		return true
	}
}

// AnalyzeSentiment classifies the caller's side of a conversation.
func (r *Router) AnalyzeSentiment(ctx context.Context, text string) Sentiment {
	if strings.TrimSpace(text) == "" {
		return NeutralSentiment
	}
	out, err := r.Complete(ctx, r.defaultModel, CompletionRequest{
		System: "Classify the overall sentiment of the caller in this phone conversation. " +
			"Reply with a single JSON object matching this schema and nothing else:\n" + sentimentSchema,
		Messages:    []Message{{Role: RoleUser, Content: text}},
		Temperature: 0.2,
		MaxTokens:   150,
	})
	if err != nil {
		r.log.WarnContext(ctx, "sentiment classifier failed", "err", err)
		return NeutralSentiment
	}
	s, err := ParseSentiment(out)
	if err != nil {
		r.log.WarnContext(ctx, "sentiment answer rejected", "err", err)
		return NeutralSentiment
	}
	return s
}

// ParseSentiment extracts and validates the first JSON object of a classifier answer.
func ParseSentiment(out string) (Sentiment, error) {
	raw := jsonObject.FindString(out)
	if raw == "" {
		return NeutralSentiment, fmt.Errorf("llm: no json object in sentiment answer")
	}
	var so sentimentOutput
	if err := json.Unmarshal([]byte(raw), &so); err != nil {
		return NeutralSentiment, fmt.Errorf("llm: decode sentiment: %w", err)
	}
	overall, ok := sentimentAliases[strings.ToLower(strings.TrimSpace(so.Sentiment))]
	if !ok {
		return NeutralSentiment, fmt.Errorf("llm: unknown sentiment %q", so.Sentiment)
	}
	if so.Score < 0 || so.Score > 1 {
		return NeutralSentiment, fmt.Errorf("llm: sentiment score %v out of range", so.Score)
	}
	return Sentiment{Overall: overall, Score: so.Score}, nil
}

// DetectScenario picks the scenario matching the caller's text. Keyword
// triggers win without a model call; otherwise the model must answer with one
// of the scenario names or "none".
func (r *Router) DetectScenario(ctx context.Context, text string, profile company.ConversationProfile) (string, bool) {
	if len(profile.Scenarios) == 0 || strings.TrimSpace(text) == "" {
		return "", false
	}
	if s, ok := profile.MatchScenario(text); ok {
		return s.Name, true
	}

	names := make([]string, 0, len(profile.Scenarios))
	for _, s := range profile.Scenarios {
		names = append(names, s.Name)
	}
	out, err := r.Complete(ctx, r.defaultModel, CompletionRequest{
		System: "Pick the conversation scenario that best fits the caller's message. " +
			"Answer with exactly one of these names, or none if nothing fits: " + strings.Join(names, ", "),
		Messages:    []Message{{Role: RoleUser, Content: text}},
		Temperature: 0.1,
		MaxTokens:   20,
	})
	if err != nil {
		r.log.WarnContext(ctx, "scenario classifier failed", "err", err)
		return "", false
	}
	answer := strings.Trim(strings.TrimSpace(out), ".\"'")
	if strings.EqualFold(answer, "none") {
		return "", false
	}
	if s, ok := profile.Scenario(answer); ok {
		return s.Name, true
	}
	return "", false
}
