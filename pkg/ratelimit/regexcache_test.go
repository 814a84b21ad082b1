package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompileCachedReturnsWorkingRegex(t *testing.T) {
	re := compileCached("^abc[0-9]+$")
	if assert.NotNil(t, re) {
		assert.True(t, re.MatchString("abc123"))
		assert.False(t, re.MatchString("xyz123"))
	}
}

func TestCompileCachedReusesEntry(t *testing.T) {
	first := compileCached("^foo$")
	second := compileCached("^foo$")
	assert.Same(t, first, second)
}

func TestCompileCachedInvalidPatternCachesNil(t *testing.T) {
	re := compileCached("(unterminated")
	assert.Nil(t, re)
	// second lookup hits the cached nil entry rather than recompiling
	assert.Nil(t, compileCached("(unterminated"))
}
