package session

import (
	"voice-assistant/internal/company"
	"voice-assistant/internal/prompt"
)

// Spoken defaults, used when the company leaves a greeting empty.
const (
	msgApology  = "Nous sommes désolés, votre appel ne peut pas être traité pour le moment. Au revoir."
	msgWelcome  = "Bonjour et bienvenue chez {{companyName}}. Comment puis-je vous aider ?"
	msgClosed   = "Merci d'avoir appelé {{companyName}}. Nous sommes actuellement fermés, merci de rappeler pendant nos heures d'ouverture."
	msgReprompt = "Je ne vous ai pas entendu. Pouvez-vous répéter s'il vous plaît ?"
	msgTransfer = "Je vous mets en relation avec un conseiller, merci de patienter."
	msgCallback = "Aucun conseiller n'est disponible pour le moment. Nous vous rappellerons dès que possible. Au revoir."
	msgGoodbye  = "Je n'arrive pas à vous entendre. Merci d'avoir appelé {{companyName}}, au revoir."
)

func greeting(p company.Profile, configured, fallback string) string {
	text := configured
	if text == "" {
		text = fallback
	}
	name := p.Name
	if name == "" {
		name = "notre entreprise"
	}
	return prompt.Substitute(text, map[string]string{"companyName": name})
}
