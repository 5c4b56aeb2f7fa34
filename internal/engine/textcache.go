package engine

import (
	"regexp"
	"sync"

	"github.com/sapo-planner/nudge-controller/internal/rules"
)

// #region cache

type matchKey struct {
	ruleID string
	shape  string
	label  string
}

type matchEntry struct {
	snippet string
	ok      bool
	pass    uint64
}

type compiled struct {
	match rules.Match
	re    *regexp.Regexp
	err   error
}

// TextMatchCache memoizes compiled patterns per rule and regex outcomes per
// (rule, shape, label). An edited label is a new key, so stale results are
// never returned; entries not touched during a pass are dropped by EndPass.
// A nil *TextMatchCache is valid and caches nothing.
type TextMatchCache struct {
	mu       sync.Mutex
	patterns map[string]compiled
	matches  map[matchKey]matchEntry
	pass     uint64
	hits     uint64
	misses   uint64
}

// NewTextMatchCache returns an empty cache.
func NewTextMatchCache() *TextMatchCache {
	return &TextMatchCache{
		patterns: make(map[string]compiled),
		matches:  make(map[matchKey]matchEntry),
	}
}

// BeginPass starts a new pass; entries touched from now on survive EndPass.
func (c *TextMatchCache) BeginPass() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.pass++
	c.mu.Unlock()
}

// EndPass drops match entries that were not touched since BeginPass and
// returns how many were removed.
func (c *TextMatchCache) EndPass() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k, e := range c.matches {
		if e.pass != c.pass {
			delete(c.matches, k)
			removed++
		}
	}
	return removed
}

// Reset empties the cache.
func (c *TextMatchCache) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.patterns = make(map[string]compiled)
	c.matches = make(map[matchKey]matchEntry)
	c.hits, c.misses = 0, 0
	c.mu.Unlock()
}

// Stats returns cumulative hit and miss counts and the current entry count.
func (c *TextMatchCache) Stats() (hits, misses uint64, entries int) {
	if c == nil {
		return 0, 0, 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.matches)
}

// #endregion

// #region lookups

func (c *TextMatchCache) compile(rule rules.TextRule) (*regexp.Regexp, error) {
	if c == nil {
		return rule.Match.Compile()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.patterns[rule.ID]
	if ok && p.match == rule.Match {
		return p.re, p.err
	}
	if ok {
		// pattern changed under the same id; old outcomes no longer apply
		for k := range c.matches {
			if k.ruleID == rule.ID {
				delete(c.matches, k)
			}
		}
	}
	re, err := rule.Match.Compile()
	c.patterns[rule.ID] = compiled{match: rule.Match, re: re, err: err}
	return re, err
}

func (c *TextMatchCache) match(ruleID string, re *regexp.Regexp, shape, label string) (string, bool) {
	if c == nil {
		return firstMatch(re, label)
	}
	key := matchKey{ruleID: ruleID, shape: shape, label: label}

	c.mu.Lock()
	if e, ok := c.matches[key]; ok {
		e.pass = c.pass
		c.matches[key] = e
		c.hits++
		c.mu.Unlock()
		return e.snippet, e.ok
	}
	c.mu.Unlock()

	snippet, ok := firstMatch(re, label)

	c.mu.Lock()
	c.matches[key] = matchEntry{snippet: snippet, ok: ok, pass: c.pass}
	c.misses++
	c.mu.Unlock()
	return snippet, ok
}

func firstMatch(re *regexp.Regexp, label string) (string, bool) {
	loc := re.FindStringIndex(label)
	if loc == nil {
		return "", false
	}
	return label[loc[0]:loc[1]], true
}

// #endregion
