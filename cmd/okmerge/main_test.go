package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDefaultAPIURL(t *testing.T) {
	assert.True(t, isDefaultAPIURL("https://api.github.com"))
	assert.True(t, isDefaultAPIURL("https://api.github.com/"))
	assert.False(t, isDefaultAPIURL("https://github.example.com/api/v3"))
}

func TestHide(t *testing.T) {
	assert.Empty(t, hide(""))
	assert.Equal(t, "**hidden**", hide("ghp_secret"))
}
