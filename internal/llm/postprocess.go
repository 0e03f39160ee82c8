package llm

import (
	"regexp"
	"strings"
)

var (
	leadingRoleLabel = regexp.MustCompile(`^\s*(?i:assistant|assistante|ai|ia)\s*:\s*`)
	userTurnMarker   = regexp.MustCompile(`(?im)(^|\s)(utilisateur|user|human)\s*:`)
	actionTag        = regexp.MustCompile(`\[ACTION:\s*([A-Za-z0-9_\-]+)\s*\]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// PostProcess cleans a raw model answer. It strips a leading role label, cuts
// the text where the model starts inventing the caller's next turn, and pulls
// out embedded [ACTION:name] tags.
func PostProcess(raw string) (string, []string) {
	text := leadingRoleLabel.ReplaceAllString(raw, "")
	if loc := userTurnMarker.FindStringIndex(text); loc != nil {
		text = text[:loc[0]]
	}

	var actions []string
	for _, m := range actionTag.FindAllStringSubmatch(text, -1) {
		actions = append(actions, m[1])
	}
	text = actionTag.ReplaceAllString(text, "")
	text = whitespaceRun.ReplaceAllString(text, " ")
	return strings.TrimSpace(text), actions
}
