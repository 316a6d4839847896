package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAPIKey(t *testing.T) {
	m := NewManager("secret-key")
	assert.False(t, m.OpenMode())

	token := m.ValidateAPIKey("secret-key", "client-1", "whatsapp")
	require.NotEmpty(t, token)
	assert.Len(t, token, 64) // 256 bits hex

	session := m.ValidateSession(token)
	require.NotNil(t, session)
	assert.Equal(t, "client-1", session.ClientID)
	assert.Equal(t, "whatsapp", session.ClientType)

	assert.Empty(t, m.ValidateAPIKey("wrong-key", "client-2", "web"))
	assert.Equal(t, 1, m.SessionCount())
}

func TestOpenModeAcceptsAnything(t *testing.T) {
	m := NewManager("")
	assert.True(t, m.OpenMode())

	token := m.ValidateAPIKey("whatever", "client-1", "web")
	assert.NotEmpty(t, token)

	token2 := m.ValidateAPIKey("", "client-2", "rest")
	assert.NotEmpty(t, token2)
	assert.NotEqual(t, token, token2)
}

func TestRemoveSessionInvalidatesToken(t *testing.T) {
	m := NewManager("secret")

	token := m.ValidateAPIKey("secret", "client-1", "web")
	require.NotEmpty(t, token)
	require.NotNil(t, m.ValidateSession(token))

	m.RemoveSession(token)
	assert.Nil(t, m.ValidateSession(token))
	assert.Equal(t, 0, m.SessionCount())

	// idempotent
	m.RemoveSession(token)
}

func TestValidateBearer(t *testing.T) {
	m := NewManager("secret")
	token := m.ValidateAPIKey("secret", "client-1", "web")

	assert.True(t, m.ValidateBearer("Bearer secret"))
	assert.True(t, m.ValidateBearer("bearer secret"))
	assert.True(t, m.ValidateBearer("Bearer "+token))
	assert.False(t, m.ValidateBearer("Bearer wrong"))
	assert.False(t, m.ValidateBearer(""))
	assert.False(t, m.ValidateBearer("secret"))
	assert.False(t, m.ValidateBearer("Basic secret"))

	// a removed session token stops working
	m.RemoveSession(token)
	assert.False(t, m.ValidateBearer("Bearer "+token))
}

func TestValidateBearerOpenMode(t *testing.T) {
	m := NewManager("")
	assert.True(t, m.ValidateBearer(""))
	assert.False(t, m.ValidateBearer("Bearer unknown-token"))
}
