// Package templates renders the bilingual customer SMS texts.
package templates

import (
	"strings"

	"waitlist/internal/models"

	"github.com/rs/zerolog"
)

const (
	KeyConfirmation        = "confirmation"
	KeyTableReady          = "tableReady"
	KeyFollowUp            = "followUp"
	KeyAutoCancel          = "autoCancel"
	KeyCancelledByCustomer = "cancelledByCustomer"
	KeyCancelled           = "cancelled"
	KeyInvalidResponse     = "invalidResponse"
)

// Placeholder names accepted in template variables.
const (
	VarName        = "name"
	VarRestaurant  = "restaurant"
	VarPartySize   = "partySize"
	VarWaitTime    = "waitTime"
	VarGracePeriod = "gracePeriod"
	VarMinutesLeft = "minutesLeft"
)

var catalog = map[models.Language]map[string]string{
	models.LanguageEnglish: {
		KeyConfirmation: "Hi {name}, you're on the waitlist at {restaurant} for a party of {partySize}. " +
			"Estimated wait: {waitTime} min. We'll text you when your table is ready.",
		KeyTableReady: "Hi {name}, your table for {partySize} at {restaurant} is ready! " +
			"Reply Y to confirm you're on your way or N to cancel. We'll hold it for {gracePeriod} minutes.",
		KeyFollowUp: "{name}, your table at {restaurant} is still waiting for you. " +
			"Please arrive in the next {minutesLeft} minutes or reply N to cancel.",
		KeyAutoCancel: "Hi {name}, we didn't hear back so your table at {restaurant} has been released. " +
			"Check in again with the host if you'd still like to dine with us.",
		KeyCancelledByCustomer: "Thanks {name}, your spot at {restaurant} has been cancelled. We hope to see you soon.",
		KeyCancelled:           "Hi {name}, your waitlist spot at {restaurant} has been cancelled. Please see the host with any questions.",
		KeyInvalidResponse:     "Sorry, we didn't understand. Reply Y to confirm your table at {restaurant} or N to cancel.",
	},
	models.LanguageFrench: {
		KeyConfirmation: "Bonjour {name}, vous êtes sur la liste d'attente de {restaurant} pour {partySize} personnes. " +
			"Attente estimée : {waitTime} min. Nous vous écrirons quand votre table sera prête.",
		KeyTableReady: "Bonjour {name}, votre table pour {partySize} chez {restaurant} est prête! " +
			"Répondez O pour confirmer ou N pour annuler. Nous la gardons pendant {gracePeriod} minutes.",
		KeyFollowUp: "{name}, votre table chez {restaurant} vous attend toujours. " +
			"Merci d'arriver dans les {minutesLeft} prochaines minutes ou répondez N pour annuler.",
		KeyAutoCancel: "Bonjour {name}, sans réponse de votre part, votre table chez {restaurant} a été libérée. " +
			"Inscrivez-vous de nouveau auprès de l'hôte si vous souhaitez toujours dîner avec nous.",
		KeyCancelledByCustomer: "Merci {name}, votre place chez {restaurant} a été annulée. Au plaisir de vous revoir.",
		KeyCancelled:           "Bonjour {name}, votre place sur la liste d'attente de {restaurant} a été annulée. Adressez-vous à l'hôte pour toute question.",
		KeyInvalidResponse:     "Désolé, nous n'avons pas compris. Répondez O pour confirmer votre table chez {restaurant} ou N pour annuler.",
	},
}

// Renderer resolves a template for a language and substitutes {placeholders}.
type Renderer struct {
	logger *zerolog.Logger
}

func NewRenderer(logger *zerolog.Logger) *Renderer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Renderer{logger: logger}
}

// Render never fails: unsupported languages fall back to English, and an unknown
// key renders as "" with the resolution error logged. Placeholders without a
// variable are left in the text.
func (r *Renderer) Render(key string, lang models.Language, vars map[string]string) string {
	text, ok := lookup(key, lang)
	if !ok {
		r.logger.Error().
			Str("template", key).
			Str("language", string(lang)).
			Msg("template not found")
		return ""
	}
	if len(vars) == 0 {
		return text
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

func lookup(key string, lang models.Language) (string, bool) {
	if set, ok := catalog[lang]; ok {
		if text, ok := set[key]; ok {
			return text, true
		}
	}
	text, ok := catalog[models.LanguageEnglish][key]
	return text, ok
}
