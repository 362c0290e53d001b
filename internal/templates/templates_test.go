package templates

import (
	"bytes"
	"testing"

	"waitlist/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	r := NewRenderer(nil)
	vars := map[string]string{
		VarName:        "Alex",
		VarPartySize:   "2",
		VarRestaurant:  "Bella Vista",
		VarGracePeriod: "15",
	}

	t.Run("FrenchTableReady", func(t *testing.T) {
		got := r.Render(KeyTableReady, models.LanguageFrench, vars)
		assert.Equal(t, "Bonjour Alex, votre table pour 2 chez Bella Vista est prête! "+
			"Répondez O pour confirmer ou N pour annuler. Nous la gardons pendant 15 minutes.", got)
	})

	t.Run("UnsupportedLanguageFallsBackToEnglish", func(t *testing.T) {
		got := r.Render(KeyTableReady, models.Language("de"), vars)
		assert.Equal(t, "Hi Alex, your table for 2 at Bella Vista is ready! "+
			"Reply Y to confirm you're on your way or N to cancel. We'll hold it for 15 minutes.", got)
	})

	t.Run("UnresolvedPlaceholdersKept", func(t *testing.T) {
		got := r.Render(KeyConfirmation, models.LanguageEnglish, map[string]string{VarName: "Sam"})
		assert.Contains(t, got, "Hi Sam,")
		assert.Contains(t, got, "{restaurant}")
		assert.Contains(t, got, "{waitTime}")
	})

	t.Run("ValuesAreNotReexpanded", func(t *testing.T) {
		got := r.Render(KeyCancelled, models.LanguageEnglish, map[string]string{VarName: "{restaurant}", VarRestaurant: "Bella Vista"})
		assert.Contains(t, got, "Hi {restaurant}, your waitlist spot at Bella Vista")
	})
}

func TestRenderMissingKey(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := NewRenderer(&logger)

	assert.Equal(t, "", r.Render("doesNotExist", models.LanguageFrench, nil))
	assert.Contains(t, buf.String(), "template not found")
	assert.Contains(t, buf.String(), "doesNotExist")
}

func TestCatalogComplete(t *testing.T) {
	keys := []string{
		KeyConfirmation, KeyTableReady, KeyFollowUp, KeyAutoCancel,
		KeyCancelledByCustomer, KeyCancelled, KeyInvalidResponse,
	}
	for _, lang := range []models.Language{models.LanguageEnglish, models.LanguageFrench} {
		for _, key := range keys {
			assert.NotEmpty(t, catalog[lang][key], "%s/%s", lang, key)
		}
	}
	_, ok := lookup("nope", models.LanguageEnglish)
	assert.False(t, ok)
}
