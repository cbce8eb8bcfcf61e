package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetPrefersPrefixedVariable(t *testing.T) {
	t.Setenv("LOG_FORMAT", "console")
	assert.Equal(t, "console", Get("LOG_FORMAT", "json"))

	t.Setenv("GIGMARKET_LOG_FORMAT", "json")
	assert.Equal(t, "json", Get("LOG_FORMAT", "text"))
}

func TestGetFallback(t *testing.T) {
	assert.Equal(t, "json", Get("GIGMARKET_TEST_UNSET_KEY", "json"))
}
