package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	sess, err := New("  buyer-1 ", "al_AL.UTF-8")
	require.NoError(t, err)

	assert.Equal(t, "buyer-1", sess.UserID)
	assert.Equal(t, "al", sess.Locale())
	assert.Equal(t, "Përdorues i panjohur", sess.T("messages.unknown_user"))
}

func TestNewRequiresUser(t *testing.T) {
	_, err := New(" ", "en")
	assert.Error(t, err)
}
