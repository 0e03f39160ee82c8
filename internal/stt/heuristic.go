package stt

import (
	"context"
	"hash/fnv"
	"strings"
)

type heuristicRule struct {
	keywords  []string
	utterance string
}

var heuristicRules = []heuristicRule{
	{[]string{"rendez", "rdv", "appointment"}, "Je voudrais prendre un rendez-vous."},
	{[]string{"prix", "tarif", "price", "devis"}, "Pouvez-vous me donner vos tarifs ?"},
	{[]string{"horaire", "ouvert", "hours"}, "Quels sont vos horaires d'ouverture ?"},
	{[]string{"conseiller", "humain", "agent", "quelqu'un"}, "Je voudrais parler à un conseiller."},
	{[]string{"commande", "livraison", "order"}, "Je vous appelle au sujet de ma commande."},
}

var genericUtterances = []string{
	"Bonjour, j'aurais besoin d'un renseignement.",
	"Pouvez-vous m'aider s'il vous plaît ?",
	"J'ai une question concernant vos services.",
	"Je voudrais avoir plus d'informations.",
	"Je vous appelle pour une demande.",
}

// Heuristic is the last resort of the pipeline. It never fails and never
// returns empty text.
type Heuristic struct {
	Language string
}

func (h Heuristic) Name() string    { return "heuristic" }
func (h Heuristic) Available() bool { return true }

func (h Heuristic) Transcribe(_ context.Context, a Audio) (Result, error) {
	return Result{Text: Guess(a.Hint), Language: h.Language, Source: h.Name()}, nil
}

// Guess maps a hint to a plausible utterance.
func Guess(hint string) string {
	q := strings.ToLower(hint)
	for _, r := range heuristicRules {
		for _, k := range r.keywords {
			if strings.Contains(q, k) {
				return r.utterance
			}
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(q))
	return genericUtterances[h.Sum32()%uint32(len(genericUtterances))]
}
