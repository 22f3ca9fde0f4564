// Package classification assigns bill categories from free text using an
// ordered table of compiled rules with an "other" fallback.
package classification

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/billfinder/internal/model"
)

// Rule maps text matching Regex to Category.
type Rule struct {
	Name     string         `yaml:"name"`
	Category model.Category `yaml:"category"`
	Regex    string         `yaml:"regex"`
	Priority int            `yaml:"priority"` // Higher priority rules are checked first
}

type compiledRule struct {
	regex *regexp.Regexp
	Rule
}

// Match is the rule that classified a piece of text.
type Match struct {
	RuleName string
	Category model.Category
}

// Classifier evaluates rules in priority order; the first match wins.
type Classifier struct {
	rules []compiledRule
	mu    sync.RWMutex
}

// New creates a classifier from rules.
func New(rules []Rule) (*Classifier, error) {
	compiled, err := compile(rules)
	if err != nil {
		return nil, err
	}
	return &Classifier{rules: compiled}, nil
}

// NewDefault creates a classifier with the built-in rule table.
func NewDefault() *Classifier {
	c, err := New(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("default classification rules do not compile: %v", err))
	}
	return c
}

func compile(rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))

	for _, r := range rules {
		if !r.Category.Valid() {
			return nil, fmt.Errorf("rule %s: unknown category %q", r.Name, r.Category)
		}

		regexStr := r.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr
		}

		regex, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.Name, err)
		}

		compiled = append(compiled, compiledRule{Rule: r, regex: regex})
	}

	// Stable so that equal priorities keep table order.
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})

	return compiled, nil
}

// Match returns the first rule matching any of texts, or nil.
func (c *Classifier) Match(texts ...string) *Match {
	searchText := strings.ToLower(strings.Join(texts, " "))
	if strings.TrimSpace(searchText) == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rule := range c.rules {
		if rule.regex.MatchString(searchText) {
			return &Match{RuleName: rule.Name, Category: rule.Category}
		}
	}
	return nil
}

// Classify returns the category of the first matching rule, or CategoryOther.
func (c *Classifier) Classify(texts ...string) model.Category {
	if m := c.Match(texts...); m != nil {
		return m.Category
	}
	return model.CategoryOther
}

// UpdateRules replaces the rule table.
func (c *Classifier) UpdateRules(rules []Rule) error {
	compiled, err := compile(rules)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.rules = compiled
	c.mu.Unlock()

	return nil
}

// RuleCount returns the number of loaded rules.
func (c *Classifier) RuleCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}
