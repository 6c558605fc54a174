package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidUtorid(t *testing.T) {
	assert.True(t, ValidUtorid("abcdef12"))
	assert.True(t, ValidUtorid("abcdefg"))
	assert.False(t, ValidUtorid("abcdef"))
	assert.False(t, ValidUtorid("abcdefghi"))
	assert.False(t, ValidUtorid("ABCDEFG1"))
	assert.False(t, ValidUtorid("abc_def1"))
}

func TestValidEmail(t *testing.T) {
	assert.True(t, ValidEmail("jane.doe@mail.utoronto.ca"))
	assert.False(t, ValidEmail("janedoe@mail.utoronto.ca"))
	assert.False(t, ValidEmail("jane.doe@utoronto.ca"))
	assert.False(t, ValidEmail("jane.doe@gmail.com"))
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("J"))
	assert.True(t, ValidName(strings.Repeat("é", 50)))
	assert.False(t, ValidName(""))
	assert.False(t, ValidName(strings.Repeat("a", 51)))
}

func TestValidPassword(t *testing.T) {
	tests := map[string]bool{
		"Abcdef1!":              true,
		"Abcdefg1":              false,
		"abcdef1!":              false,
		"ABCDEF1!":              false,
		"Abcdefg!":              false,
		"Ab1!":                  false,
		"Abcdefghij1!Abcdefghi": false,
	}
	for pw, want := range tests {
		t.Run(pw, func(t *testing.T) {
			assert.Equal(t, want, ValidPassword(pw))
		})
	}
}

func TestParseBirthday(t *testing.T) {
	day, ok := ParseBirthday("2000-02-29")
	assert.True(t, ok)
	assert.Equal(t, 29, day.Day())

	_, ok = ParseBirthday("2023-02-30")
	assert.False(t, ok)
	_, ok = ParseBirthday("03/04/2001")
	assert.False(t, ok)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("Abcdef1!")
	assert.NoError(t, err)
	assert.True(t, CheckPassword(hash, "Abcdef1!"))
	assert.False(t, CheckPassword(hash, "Abcdef1?"))
	assert.False(t, CheckPassword("", ""))
}
