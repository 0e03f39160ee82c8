package company

import "strings"

// Profile is the company data the call session reads. It is owned by an external
// directory; the session only reads snapshots.
type Profile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Numbers     []string `json:"inbound_numbers"`

	Hours     BusinessHours `json:"business_hours"`
	Greetings Greetings     `json:"greetings"`

	Products []string `json:"products,omitempty"`
	Services []string `json:"services,omitempty"`
	FAQ      []FAQ    `json:"faq,omitempty"`

	CustomResponses []CustomResponse `json:"custom_responses,omitempty"`

	AllowHumanEscalation bool                `json:"allow_human_escalation"`
	EscalationTargets    []EscalationTarget `json:"escalation_targets,omitempty"`
	EscalationTriggers   []string           `json:"escalation_triggers,omitempty"`

	Voice Voice `json:"voice"`

	// Conversation holds the company's default conversation configuration.
	Conversation ConversationProfile `json:"conversation"`
	// NamedConversations are optional alternative configurations, keyed by name.
	NamedConversations map[string]ConversationProfile `json:"named_conversations,omitempty"`
}

type Greetings struct {
	Welcome  string `json:"welcome"`
	Closed   string `json:"closed"`
	Reprompt string `json:"reprompt"`
	Transfer string `json:"transfer"`
	Goodbye  string `json:"goodbye"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type CustomResponse struct {
	Keyword  string `json:"keyword"`
	Response string `json:"response"`
}

type EscalationTarget struct {
	Number string `json:"number"`
	Weight int    `json:"weight"`
}

// Voice selects the TTS voice of the company.
type Voice struct {
	Provider string  `json:"provider,omitempty"`
	VoiceID  string  `json:"voice_id,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
}

// ConversationProfile is the read-only configuration of one call's conversation.
type ConversationProfile struct {
	ConversationType string `json:"conversation_type"`
	IndustryType     string `json:"industry_type"`
	FormalityLevel   string `json:"formality_level"`

	AI AISettings `json:"ai_settings"`

	Scenarios        []Scenario        `json:"scenarios,omitempty"`
	DocumentExcerpts []DocumentExcerpt `json:"document_excerpts,omitempty"`

	Variables map[string]string `json:"variables,omitempty"`
}

type AISettings struct {
	ModelID            string            `json:"model_id,omitempty"`
	Temperature        float64           `json:"temperature,omitempty"`
	CommunicationStyle string            `json:"communication_style,omitempty"`
	AdditionalParams   map[string]string `json:"additional_params,omitempty"`
}

type Scenario struct {
	Name              string   `json:"name"`
	Prompt            string   `json:"prompt"`
	Triggers          []string `json:"triggers,omitempty"`
	Actions           []string `json:"actions,omitempty"`
	RequiredVariables []string `json:"required_variables,omitempty"`
}

type DocumentExcerpt struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// Scenario returns the named scenario of the profile.
func (p ConversationProfile) Scenario(name string) (Scenario, bool) {
	for _, s := range p.Scenarios {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Scenario{}, false
}

// MatchScenario returns the first scenario whose trigger keyword appears in text.
func (p ConversationProfile) MatchScenario(text string) (Scenario, bool) {
	q := strings.ToLower(text)
	for _, s := range p.Scenarios {
		for _, trg := range s.Triggers {
			trg = strings.ToLower(strings.TrimSpace(trg))
			if trg != "" && strings.Contains(q, trg) {
				return s, true
			}
		}
	}
	return Scenario{}, false
}

// FindCustomResponse returns the first custom response whose keyword appears in query.
func (p Profile) FindCustomResponse(query string) (string, bool) {
	q := strings.ToLower(query)
	for _, cr := range p.CustomResponses {
		k := strings.ToLower(strings.TrimSpace(cr.Keyword))
		if k != "" && strings.Contains(q, k) {
			return cr.Response, true
		}
	}
	return "", false
}

// MatchesEscalationTrigger reports whether text contains one of the escalation keywords.
func (p Profile) MatchesEscalationTrigger(text string) (string, bool) {
	q := strings.ToLower(text)
	for _, trg := range p.EscalationTriggers {
		k := strings.ToLower(strings.TrimSpace(trg))
		if k != "" && strings.Contains(q, k) {
			return trg, true
		}
	}
	return "", false
}
