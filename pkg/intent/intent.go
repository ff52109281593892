// Package intent classifies a visitor utterance against fixed keyword
// sets. An utterance is lower-cased, split on whitespace and collapsed to
// a set; a Rule matches when the set intersects every one of its
// required keyword sets. Rules are evaluated in order, first match wins.
package intent

import "strings"

// Intent identifies a classified visitor request.
type Intent string

const (
	None             Intent = ""
	LightOn          Intent = "light_on"
	LightOff         Intent = "light_off"
	PackageOffer     Intent = "package_offer"
	RegisteredLetter Intent = "registered_letter"
	PartyGuests      Intent = "party_guests"
	Visit            Intent = "visit"
	UnsolicitedOffer Intent = "unsolicited_offer"
	Hangup           Intent = "hangup"

	Affirmative Intent = "affirmative"
	Negative    Intent = "negative"
)

// Set is a set of lower-case words.
type Set map[string]struct{}

// NewSet builds a Set from words, lower-casing each one.
func NewSet(words ...string) Set {
	s := make(Set, len(words))
	for _, w := range words {
		s[strings.ToLower(w)] = struct{}{}
	}
	return s
}

// Union returns a new set holding the words of all sets.
func Union(sets ...Set) Set {
	out := make(Set)
	for _, s := range sets {
		for w := range s {
			out[w] = struct{}{}
		}
	}
	return out
}

// Has reports whether w is in the set.
func (s Set) Has(w string) bool {
	_, ok := s[w]
	return ok
}

// Intersects reports whether s and o share at least one word.
func (s Set) Intersects(o Set) bool {
	small, large := s, o
	if len(small) > len(large) {
		small, large = large, small
	}
	for w := range small {
		if _, ok := large[w]; ok {
			return true
		}
	}
	return false
}

// Tokenize lower-cases the utterance and splits it on whitespace.
// Repeated words collapse into one entry.
func Tokenize(utterance string) Set {
	return NewSet(strings.Fields(strings.ToLower(utterance))...)
}

// Rule maps a conjunction of keyword sets to an intent.
type Rule struct {
	Intent  Intent
	Require []Set
}

// Matches reports whether tokens intersect every required set.
// A rule without requirements never matches.
func (r Rule) Matches(tokens Set) bool {
	if len(r.Require) == 0 {
		return false
	}
	for _, req := range r.Require {
		if !tokens.Intersects(req) {
			return false
		}
	}
	return true
}

// Classifier evaluates an ordered rule table.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier over rules, in priority order.
func NewClassifier(rules []Rule) *Classifier {
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify tokenizes the utterance and returns the first matching intent.
func (c *Classifier) Classify(utterance string) (Intent, bool) {
	return c.ClassifyTokens(Tokenize(utterance))
}

// ClassifyTokens returns the first rule's intent whose requirements the
// tokens satisfy.
func (c *Classifier) ClassifyTokens(tokens Set) (Intent, bool) {
	for _, r := range c.rules {
		if r.Matches(tokens) {
			return r.Intent, true
		}
	}
	return None, false
}

// Rules returns a copy of the rule table.
func (c *Classifier) Rules() []Rule {
	return append([]Rule(nil), c.rules...)
}
