// Package prompt builds the layered system instruction sent to the language model.
// Everything here is pure: no I/O and no clock.
package prompt

import (
	"fmt"
	"regexp"
	"strings"

	"voice-assistant/internal/company"
)

const (
	DefaultExcerptBudget = 5000
	MaxFAQEntries        = 3
	TruncationMarker     = "[content truncated]"
)

// Input is everything the assembler needs for one turn.
type Input struct {
	Company  company.Profile
	Profile  company.ConversationProfile
	Scenario *company.Scenario

	// Variables override the profile variables with the same key.
	Variables map[string]string

	// ExcerptBudget is the character budget for document excerpts; 0 means DefaultExcerptBudget.
	ExcerptBudget int
}

// Assemble concatenates the persona, company data, scenario, documents, industry
// and formality sections in that order.
func Assemble(in Input) string {
	vars := variables(in)

	sections := []string{
		persona(in),
		companyData(in.Company),
		scenario(in.Scenario),
		excerpts(in.Profile.DocumentExcerpts, in.ExcerptBudget),
		approach(in.Profile.ConversationType),
		industryDirective(in.Profile.IndustryType),
		formalityDirective(in.Profile.FormalityLevel),
		styleDirective(in.Profile.AI.CommunicationStyle),
	}

	var b strings.Builder
	for _, s := range sections {
		if strings.TrimSpace(s) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}
	return Substitute(b.String(), vars)
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Substitute replaces {{key}} tokens found in vars. Unknown tokens are left as they are.
func Substitute(s string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(tok string) string {
		key := placeholder.FindStringSubmatch(tok)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return tok
	})
}

func variables(in Input) map[string]string {
	vars := make(map[string]string, len(in.Profile.Variables)+len(in.Variables)+1)
	for k, v := range in.Profile.Variables {
		vars[k] = v
	}
	for k, v := range in.Variables {
		vars[k] = v
	}
	if _, ok := vars["companyName"]; !ok && in.Company.Name != "" {
		vars["companyName"] = in.Company.Name
	}
	return vars
}

func persona(in Input) string {
	var b strings.Builder
	b.WriteString("You are the voice assistant of {{companyName}}. ")
	switch in.Profile.ConversationType {
	case "sales", "lead_generation", "product_demo", "upsell", "cross_sell":
		b.WriteString("You help callers discover the offer that fits their needs.")
	case "support", "technical_support", "product_issue":
		b.WriteString("You help callers solve their problems quickly and clearly.")
	case "recruitment", "onboarding", "training":
		b.WriteString("You guide candidates and new employees through their questions.")
	case "appointment", "reservation":
		b.WriteString("You help callers book, move or cancel appointments.")
	default:
		b.WriteString("You answer callers' questions accurately and politely.")
	}
	if d := strings.TrimSpace(in.Company.Description); d != "" {
		b.WriteString("\n")
		b.WriteString(d)
	}
	b.WriteString("\nAnswers are spoken on the phone: keep them short, never invent information, and offer a human advisor when you do not know.")
	return b.String()
}

func companyData(p company.Profile) string {
	var b strings.Builder
	if len(p.Products) > 0 {
		b.WriteString("Products: ")
		b.WriteString(strings.Join(p.Products, ", "))
		b.WriteString(".\n")
	}
	if len(p.Services) > 0 {
		b.WriteString("Services: ")
		b.WriteString(strings.Join(p.Services, ", "))
		b.WriteString(".\n")
	}
	if len(p.FAQ) > 0 {
		b.WriteString("Frequently asked questions:\n")
		n := len(p.FAQ)
		if n > MaxFAQEntries {
			n = MaxFAQEntries
		}
		for _, f := range p.FAQ[:n] {
			fmt.Fprintf(&b, "Q: %s\nA: %s\n", f.Question, f.Answer)
		}
		if more := len(p.FAQ) - n; more > 0 {
			fmt.Fprintf(&b, "(%d more available)\n", more)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func scenario(s *company.Scenario) string {
	if s == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario %q:\n%s", s.Name, strings.TrimSpace(s.Prompt))
	if len(s.Actions) > 0 {
		b.WriteString("\nAvailable actions. Emit the tag when the action applies:")
		for i, a := range s.Actions {
			fmt.Fprintf(&b, "\n%d. [ACTION:%s]", i+1, a)
		}
	}
	if len(s.RequiredVariables) > 0 {
		b.WriteString("\nInformation to collect: ")
		b.WriteString(strings.Join(s.RequiredVariables, ", "))
	}
	return b.String()
}

// excerpts keeps documents in order until the budget runs out. The last fitting
// document is cut and a single truncation marker ends the section.
func excerpts(docs []company.DocumentExcerpt, budget int) string {
	if len(docs) == 0 {
		return ""
	}
	if budget <= 0 {
		budget = DefaultExcerptBudget
	}
	var b strings.Builder
	b.WriteString("Reference documents:")
	remaining := budget
	for _, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		if remaining <= 0 {
			b.WriteString("\n")
			b.WriteString(TruncationMarker)
			break
		}
		fmt.Fprintf(&b, "\n[%s]\n", d.Source)
		r := []rune(text)
		if len(r) > remaining {
			b.WriteString(string(r[:remaining]))
			b.WriteString("\n")
			b.WriteString(TruncationMarker)
			break
		}
		b.WriteString(text)
		remaining -= len(r)
	}
	return b.String()
}

func approach(conversationType string) string {
	switch conversationType {
	case "sales", "lead_generation", "product_demo", "upsell", "cross_sell":
		return "Approach: ask open questions to understand needs, present benefits rather than features, address objections calmly. Be confident but never pushy."
	case "support", "technical_support", "product_issue":
		return "Approach: restate the problem to confirm it, give step-by-step solutions, check that the problem is solved. Stay patient with frustrated callers."
	case "recruitment", "onboarding", "training":
		return "Approach: use inclusive language, structure information clearly, answer concerns with empathy."
	case "financial_advice", "investment_guidance":
		return "Approach: give accurate, neutral information and no specific recommendation."
	case "medical_assistance", "health_guidance":
		return "Approach: give general information only and direct callers to health professionals."
	default:
		return ""
	}
}

func industryDirective(industry string) string {
	switch industry {
	case "healthcare":
		return "Compliance: never give a diagnosis. Information does not replace a health professional. Protect patient confidentiality."
	case "finance", "banking", "insurance":
		return "Compliance: information is general and is not personalised financial advice. Never ask for full card numbers or passwords."
	case "legal":
		return "Compliance: information is general and is not legal advice. Suggest consulting a lawyer for specific cases."
	case "technology":
		return "Tone: emphasise innovation, security and return on investment."
	case "retail", "ecommerce":
		return "Tone: friendly and helpful. Mention return and delivery policies when relevant."
	case "real_estate":
		return "Tone: precise about locations, surfaces and prices. Never commit to a price on behalf of the agency."
	case "education":
		return "Tone: encouraging and pedagogical."
	case "hospitality":
		return "Tone: warm and welcoming. Confirm dates and the number of guests."
	default:
		return ""
	}
}

func formalityDirective(level string) string {
	switch level {
	case "formal":
		return "Formality: formal register. Always use the polite form of address."
	case "casual":
		return "Formality: relaxed and friendly register while staying respectful."
	case "neutral", "":
		return "Formality: professional and courteous."
	default:
		return "Formality: " + level + "."
	}
}

func styleDirective(style string) string {
	if strings.TrimSpace(style) == "" {
		return ""
	}
	return "Communication style: " + strings.TrimSpace(style) + "."
}
