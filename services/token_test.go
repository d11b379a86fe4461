package services_test

import (
	"testing"

	"github.com/aarthurxk/calibrasil-sub001/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSigner(t *testing.T) {
	a, err := services.NewTokenSigner(testSecret)
	require.NoError(t, err)
	b, err := services.NewTokenSigner(testSecret + "-rotated")
	require.NoError(t, err)

	id := uuid.New()
	tok := a.Token(id)
	assert.Len(t, tok, 64)
	assert.Equal(t, tok, a.Token(id))
	assert.NotEqual(t, tok, a.Token(uuid.New()))
	assert.NotEqual(t, tok, b.Token(id))

	assert.True(t, a.Valid(id, tok))
	assert.True(t, a.Valid(id, " "+tok+"\n"))
	assert.False(t, b.Valid(id, tok))
	assert.False(t, a.Valid(id, tok[:62]))
	assert.False(t, a.Valid(id, "not-hex"))
}

func TestTokenSigner_ShortSecret(t *testing.T) {
	_, err := services.NewTokenSigner("short")
	assert.Error(t, err)
}
