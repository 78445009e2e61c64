package resolver

import (
	"fmt"
	"regexp"
	"strings"
)

// RepoRule selects which refs of one repository get builds.
type RepoRule struct {
	// Repo is "owner/name", compared case-insensitively.
	Repo string

	// Refs are regular expressions matched against branch names (or the
	// target branch of a pull request).
	Refs []string

	// PullRequests enables builds for pull requests whose target matches Refs.
	PullRequests bool
}

type compiledRule struct {
	repo         string
	refs         []*regexp.Regexp
	pullRequests bool
}

// Policy decides whether an event is relevant.
type Policy struct {
	rules []compiledRule
}

// NewPolicy compiles the given rules.
func NewPolicy(rules []RepoRule) (*Policy, error) {
	p := &Policy{rules: make([]compiledRule, 0, len(rules))}
	for _, rule := range rules {
		compiled := compiledRule{
			repo:         strings.ToLower(rule.Repo),
			pullRequests: rule.PullRequests,
		}
		for _, expr := range rule.Refs {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, fmt.Errorf("invalid ref pattern %q for %s: %w", expr, rule.Repo, err)
			}
			compiled.refs = append(compiled.refs, re)
		}
		p.rules = append(p.rules, compiled)
	}
	return p, nil
}

// Matches reports whether ev passes the policy.
func (p *Policy) Matches(ev Event) bool {
	repo := strings.ToLower(ev.Repo)
	for _, rule := range p.rules {
		if rule.repo != repo {
			continue
		}

		ref := ev.Ref
		if ev.Target != "" {
			if !rule.pullRequests {
				continue
			}
			ref = ev.Target
		}

		for _, re := range rule.refs {
			if re.MatchString(ref) {
				return true
			}
		}
	}
	return false
}
