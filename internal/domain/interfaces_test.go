package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLanguage_Valid(t *testing.T) {
	assert.True(t, Gujarati.Valid())
	assert.True(t, English.Valid())
	assert.True(t, Hindi.Valid())
	assert.False(t, Language("fr").Valid())
	assert.False(t, Language("").Valid())
}

func TestLanguage_Or(t *testing.T) {
	assert.Equal(t, Hindi, Hindi.Or(English))
	assert.Equal(t, English, Language("xx").Or(English))
	assert.Equal(t, Gujarati, Language("").Or(Gujarati))
}

func TestRetrievalResult_Empty(t *testing.T) {
	assert.True(t, RetrievalResult{}.Empty())
	assert.False(t, RetrievalResult{Items: []ScoredChunk{{Score: 1}}}.Empty())
}
