package ratelimit

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// regexCache memoizes compiled label matchers so a rule with a regex
// value isn't recompiled on every GetQuota call (label matching runs
// on the request hot path).
var regexCache = mustNewRegexCache(256)

func mustNewRegexCache(size int) *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(err)
	}
	return c
}

// compileCached returns the compiled form of pattern, compiling and
// caching on first use. An invalid pattern caches a nil entry so it
// isn't retried every call.
func compileCached(pattern string) *regexp.Regexp {
	if re, ok := regexCache.Get(pattern); ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	regexCache.Add(pattern, re)
	return re
}
