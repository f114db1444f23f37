package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnglish(t *testing.T) {
	c, err := Load("en")
	require.NoError(t, err)

	assert.Equal(t, "en", c.Locale())
	assert.Equal(t, "Unknown user", c.T("messages.unknown_user"))
	assert.Equal(t, "Conversations", c.T("app.conversations"))
}

func TestLoadAlbanian(t *testing.T) {
	c, err := Load("al")
	require.NoError(t, err)

	assert.Equal(t, "al", c.Locale())
	assert.Equal(t, "Përdorues i panjohur", c.T("messages.unknown_user"))
}

func TestLoadNormalizesAndFallsBack(t *testing.T) {
	c, err := Load("en_US.UTF-8")
	require.NoError(t, err)
	assert.Equal(t, "en", c.Locale())

	c, err = Load("fr")
	require.NoError(t, err)
	assert.Equal(t, "en", c.Locale())
	assert.Equal(t, "Yesterday", c.T("messages.yesterday"))

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "en", c.Locale())
}

func TestMissingKeyReturnsKey(t *testing.T) {
	c, err := Load("al")
	require.NoError(t, err)
	assert.Equal(t, "messages.does_not_exist", c.T("messages.does_not_exist"))
}

func TestFormat(t *testing.T) {
	c, err := Load("en")
	require.NoError(t, err)

	got := c.Format("messages.order_subject_product", map[string]string{"product": "Honey"})
	assert.Equal(t, "Question about my order of Honey", got)
}

func TestCatalogsHaveSameKeys(t *testing.T) {
	en, err := loadStrings("en")
	require.NoError(t, err)

	for _, locale := range Locales() {
		strs, err := loadStrings(locale)
		require.NoError(t, err, locale)
		for key := range en {
			assert.Contains(t, strs, key, "%s is missing %s", locale, key)
		}
	}
}

func TestDefaultIsFallbackLocale(t *testing.T) {
	c := Default()
	require.NotNil(t, c)
	assert.Equal(t, FallbackLocale, c.Locale())
	assert.Equal(t, "Unknown user", c.T("messages.unknown_user"))
}

func TestMustLoadUnknownLocaleFallsBack(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, FallbackLocale, MustLoad("xx").Locale())
	})
}
