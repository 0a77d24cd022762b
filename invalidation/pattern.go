package invalidation

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// PatternMatcher matches cache keys against glob patterns (*, ?, [...]),
// compiling and caching the regex form of non-trivial patterns.
type PatternMatcher struct {
	regexCache sync.Map // pattern string -> *regexp.Regexp
}

// NewPatternMatcher returns a ready-to-use matcher with an empty cache.
func NewPatternMatcher() *PatternMatcher {
	return &PatternMatcher{}
}

// Match reports whether key satisfies pattern.
func (m *PatternMatcher) Match(pattern, key string) (bool, error) {
	if pattern == "" {
		return false, fmt.Errorf("invalidation: pattern cannot be empty")
	}

	if pattern == key {
		return true, nil
	}
	if pattern == "*" {
		return true, nil
	}

	// Fast path: trailing-star prefix match, the common invalidation case.
	if strings.HasSuffix(pattern, "*") && !strings.ContainsAny(pattern[:len(pattern)-1], "*?[") {
		return strings.HasPrefix(key, pattern[:len(pattern)-1]), nil
	}

	re, err := m.compiled(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(key), nil
}

func (m *PatternMatcher) compiled(pattern string) (*regexp.Regexp, error) {
	if cached, ok := m.regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}

	re, err := regexp.Compile("^" + globToRegex(pattern) + "$")
	if err != nil {
		return nil, fmt.Errorf("invalidation: invalid pattern %q: %w", pattern, err)
	}
	m.regexCache.Store(pattern, re)
	return re, nil
}

// globToRegex translates glob syntax (* ? [...]) to an anchored regex
// fragment. Character classes are passed through verbatim; every other
// regex metacharacter is escaped.
func globToRegex(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern) * 2)

	for i := 0; i < len(pattern); i++ {
		ch := pattern[i]
		switch ch {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '[':
			j := i + 1
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j < len(pattern) {
				b.WriteString(pattern[i : j+1])
				i = j
			} else {
				b.WriteString(`\[`)
			}
		case '.', '+', '(', ')', '|', ']', '{', '}', '^', '$', '\\':
			b.WriteByte('\\')
			b.WriteByte(ch)
		default:
			b.WriteByte(ch)
		}
	}
	return b.String()
}

// MatchPattern is the package-level convenience form, used where callers
// do not need a standing cache (e.g. one-off validation).
func MatchPattern(pattern, key string) (bool, error) {
	return defaultMatcher.Match(pattern, key)
}

// FilterKeys returns every key in keys matching pattern.
func FilterKeys(pattern string, keys []string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("invalidation: pattern cannot be empty")
	}
	if pattern == "*" {
		out := make([]string, len(keys))
		copy(out, keys)
		return out, nil
	}

	out := make([]string, 0, len(keys)/10+1)
	for _, k := range keys {
		ok, err := defaultMatcher.Match(pattern, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

var defaultMatcher = NewPatternMatcher()

// CacheSize reports how many distinct patterns have a compiled regex
// cached. Useful for tests and diagnostics.
func (m *PatternMatcher) CacheSize() int {
	n := 0
	m.regexCache.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}
