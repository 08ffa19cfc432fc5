package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentIDKnownVector(t *testing.T) {
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824",
		ContentID([]byte("hello")))
}

func TestContentIDEmpty(t *testing.T) {
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		ContentID(nil))
}

func TestContentIDIsValid(t *testing.T) {
	assert.True(t, ValidCID(ContentID([]byte("anything"))))
	assert.False(t, ValidCID("ABC"))
	assert.False(t, ValidCID(""))
}

func TestClaimIDShape(t *testing.T) {
	id := ClaimID("Water boils at 100C at sea level")
	assert.True(t, ValidClaimID(id), id)
	assert.Len(t, id, len(ClaimIDPrefix)+16)
}

func TestClaimIDDeterminism(t *testing.T) {
	// sha1("hello") = aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d
	assert.Equal(t, "clm_aaf4c61ddcc5e8a2", ClaimID("hello"))
	assert.Equal(t, ClaimID("same text"), ClaimID("same text"))
	assert.NotEqual(t, ClaimID("same text"), ClaimID("same text."))
}
