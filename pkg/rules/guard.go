package rules

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// Pattern and input limits of the safe-regex guard
const (
	maxPatternLength = 1000
	maxQuantifiers   = 100
	maxGroups        = 20
	maxClassSize     = 100
	maxInputLength   = 10000

	// DefaultSlowMatchThreshold is how long a match may take before a
	// warning is logged.
	DefaultSlowMatchThreshold = 100 * time.Millisecond

	regexCacheSize = 256
)

// ErrUnsafePattern marks a pattern or input rejected for safety
var ErrUnsafePattern = errors.New("regex rejected for safety")

// RegexGuard validates patterns against structural ReDoS risk before they
// ever reach the regex engine, and bounds input size. Compiled patterns
// are cached.
type RegexGuard struct {
	cache         *lru.Cache[string, *regexp.Regexp]
	slowThreshold time.Duration
	log           *logrus.Logger
}

// NewRegexGuard creates a guard with the default slow-match threshold
func NewRegexGuard() *RegexGuard {
	cache, _ := lru.New[string, *regexp.Regexp](regexCacheSize)
	return &RegexGuard{
		cache:         cache,
		slowThreshold: DefaultSlowMatchThreshold,
		log:           logrus.StandardLogger(),
	}
}

// SetSlowMatchThreshold overrides the slow-match warning threshold
func (g *RegexGuard) SetSlowMatchThreshold(d time.Duration) {
	g.slowThreshold = d
}

// Match runs pattern against input after the safety checks. Rejected
// patterns and oversized inputs fail without executing the engine.
func (g *RegexGuard) Match(pattern, input string) (bool, error) {
	if len(input) > maxInputLength {
		return false, fmt.Errorf("%w: input exceeds %d characters", ErrUnsafePattern, maxInputLength)
	}
	if err := CheckPattern(pattern); err != nil {
		return false, err
	}

	re, ok := g.cache.Get(pattern)
	if !ok {
		var err error
		// matches() requires the whole input to match.
		re, err = regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return false, fmt.Errorf("invalid regex %q: %w", pattern, err)
		}
		g.cache.Add(pattern, re)
	}

	start := time.Now()
	matched := re.MatchString(input)
	if elapsed := time.Since(start); elapsed > g.slowThreshold {
		g.log.WithFields(logrus.Fields{
			"pattern": pattern,
			"elapsed": elapsed,
		}).Warn("slow regex evaluation")
	}
	return matched, nil
}

// CheckPattern applies the static limits and structural ReDoS checks
func CheckPattern(pattern string) error {
	if len(pattern) > maxPatternLength {
		return fmt.Errorf("%w: pattern exceeds %d characters", ErrUnsafePattern, maxPatternLength)
	}
	info, err := scanPattern(pattern)
	if err != nil {
		return err
	}
	if info.quantifiers > maxQuantifiers {
		return fmt.Errorf("%w: more than %d quantifiers", ErrUnsafePattern, maxQuantifiers)
	}
	if info.groups > maxGroups {
		return fmt.Errorf("%w: more than %d groups", ErrUnsafePattern, maxGroups)
	}
	if info.maxClass > maxClassSize {
		return fmt.Errorf("%w: character class exceeds %d entries", ErrUnsafePattern, maxClassSize)
	}
	if info.nestedQuantifier {
		return fmt.Errorf("%w: nested quantifiers", ErrUnsafePattern)
	}
	if info.overlappingAlternation {
		return fmt.Errorf("%w: overlapping alternation under a quantifier", ErrUnsafePattern)
	}
	if info.adjacentGreedy {
		return fmt.Errorf("%w: adjacent unbounded repetitions", ErrUnsafePattern)
	}
	if info.quantifiedLookaround {
		return fmt.Errorf("%w: quantifier inside lookaround", ErrUnsafePattern)
	}
	return nil
}

type patternInfo struct {
	quantifiers            int
	groups                 int
	maxClass               int
	nestedQuantifier       bool
	overlappingAlternation bool
	adjacentGreedy         bool
	quantifiedLookaround   bool
}

type groupFrame struct {
	hasQuantifier bool
	alternation   bool
	branchStarts  []byte
	lookaround    bool
	atStart       bool
}

// scanPattern walks the pattern once, tracking group nesting, quantifier
// placement and character classes.
func scanPattern(pattern string) (*patternInfo, error) {
	info := &patternInfo{}

	for _, bad := range []string{".*.*", ".+.+", ".*.+", ".+.*"} {
		if strings.Contains(pattern, bad) {
			info.adjacentGreedy = true
		}
	}

	var stack []*groupFrame
	prevWasGroupEnd := false
	prevGroupHadQuantifier := false
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch c {
		case '\\':
			i += 2
			prevWasGroupEnd = false
			continue
		case '[':
			end := i + 1
			if end < len(pattern) && pattern[end] == '^' {
				end++
			}
			if end < len(pattern) && pattern[end] == ']' {
				end++
			}
			for end < len(pattern) && pattern[end] != ']' {
				if pattern[end] == '\\' {
					end++
				}
				end++
			}
			if end >= len(pattern) {
				return nil, fmt.Errorf("%w: unterminated character class", ErrUnsafePattern)
			}
			if size := end - i - 1; size > info.maxClass {
				info.maxClass = size
			}
			i = end + 1
			prevWasGroupEnd = false
			continue
		case '(':
			info.groups++
			frame := &groupFrame{atStart: true}
			if strings.HasPrefix(pattern[i:], "(?=") || strings.HasPrefix(pattern[i:], "(?!") ||
				strings.HasPrefix(pattern[i:], "(?<=") || strings.HasPrefix(pattern[i:], "(?<!") {
				frame.lookaround = true
			}
			stack = append(stack, frame)
			prevWasGroupEnd = false
		case ')':
			if len(stack) > 0 {
				frame := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				prevWasGroupEnd = true
				prevGroupHadQuantifier = frame.hasQuantifier
				if quantifierFollows(pattern, i+1) {
					if frame.hasQuantifier {
						info.nestedQuantifier = true
					}
					if frame.alternation && branchesOverlap(frame.branchStarts) {
						info.overlappingAlternation = true
					}
				}
				i++
				continue
			}
		case '*', '+', '?':
			info.quantifiers++
			for _, frame := range stack {
				frame.hasQuantifier = true
				if frame.lookaround {
					info.quantifiedLookaround = true
				}
			}
			if prevWasGroupEnd && prevGroupHadQuantifier {
				info.nestedQuantifier = true
			}
			prevWasGroupEnd = false
		case '{':
			if end := strings.IndexByte(pattern[i:], '}'); end > 0 && isCountedRepeat(pattern[i:i+end+1]) {
				info.quantifiers++
				for _, frame := range stack {
					frame.hasQuantifier = true
					if frame.lookaround {
						info.quantifiedLookaround = true
					}
				}
				i += end + 1
				prevWasGroupEnd = false
				continue
			}
			prevWasGroupEnd = false
		case '|':
			if len(stack) > 0 {
				frame := stack[len(stack)-1]
				frame.alternation = true
				frame.atStart = true
			}
			prevWasGroupEnd = false
		default:
			if len(stack) > 0 {
				frame := stack[len(stack)-1]
				if frame.atStart {
					frame.branchStarts = append(frame.branchStarts, c)
					frame.atStart = false
				}
			}
			prevWasGroupEnd = false
		}
		i++
	}
	return info, nil
}

// quantifierFollows reports whether position i holds *, +, ? or {n,m}
func quantifierFollows(pattern string, i int) bool {
	if i >= len(pattern) {
		return false
	}
	switch pattern[i] {
	case '*', '+', '?':
		return true
	case '{':
		end := strings.IndexByte(pattern[i:], '}')
		return end > 0 && isCountedRepeat(pattern[i:i+end+1])
	}
	return false
}

// isCountedRepeat reports whether s looks like {n}, {n,} or {n,m}
func isCountedRepeat(s string) bool {
	if len(s) < 3 || s[0] != '{' || s[len(s)-1] != '}' {
		return false
	}
	inner := s[1 : len(s)-1]
	digits := false
	for _, c := range inner {
		switch {
		case c >= '0' && c <= '9':
			digits = true
		case c == ',':
		default:
			return false
		}
	}
	return digits
}

// branchesOverlap reports whether two alternation branches begin with the
// same character, or any begins with the wildcard dot.
func branchesOverlap(starts []byte) bool {
	seen := make(map[byte]bool)
	for _, c := range starts {
		if c == '.' || seen[c] {
			return true
		}
		seen[c] = true
	}
	return false
}

// regexMetachars are escaped by EscapeRegex
const regexMetachars = `.*+?^${}()|[]\`

// EscapeRegex escapes the standard regex metacharacters in a literal
func EscapeRegex(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(regexMetachars, s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
