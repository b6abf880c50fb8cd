package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndComparePassword(t *testing.T) {
	hash, err := HashPassword("warehouse-Pick42")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotEqual(t, "warehouse-Pick42", hash)

	assert.NoError(t, ComparePassword(hash, "warehouse-Pick42"))
	assert.Error(t, ComparePassword(hash, "warehouse-Pick43"))
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}

func TestGenerateOpaqueToken(t *testing.T) {
	plain, hash, err := GenerateOpaqueToken()
	require.NoError(t, err)
	assert.NotEmpty(t, plain)
	assert.Equal(t, HashOpaqueToken(plain), hash)

	plain2, hash2, err := GenerateOpaqueToken()
	require.NoError(t, err)
	assert.NotEqual(t, plain, plain2)
	assert.NotEqual(t, hash, hash2)
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("forklift99"))
	assert.Error(t, ValidatePassword("short1"), "too short")
	assert.Error(t, ValidatePassword("lettersonly"), "no digit")
	assert.Error(t, ValidatePassword("12345678"), "no letter")
}
