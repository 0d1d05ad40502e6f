// Package extract derives emergency facts, locations, a summary and keywords
// from what the caller said when the assistant backend does not supply them.
package extract

import (
	"regexp"
	"strings"
	"sync"
)

type category struct {
	name  string
	terms []string
}

var (
	emergencyKinds = []category{
		{name: "fire", terms: []string{"fire", "smoke", "burning"}},
		{name: "flood", terms: []string{"flood", "flooding", "water rising"}},
		{name: "earthquake", terms: []string{"earthquake", "tremor", "shaking"}},
		{name: "medical", terms: []string{"injured", "bleeding", "unconscious", "heart attack", "collapse"}},
		{name: "storm", terms: []string{"tornado", "hurricane", "storm", "wind"}},
	}

	vulnerabilities = []category{
		{name: "child", terms: []string{"child", "kid", "baby"}},
		{name: "elderly", terms: []string{"elderly", "old", "senior"}},
		{name: "pregnant", terms: []string{"pregnant", "expecting"}},
	}

	hazards      = []string{"gas leak", "weapon", "gun", "knife", "electric", "collapsed"}
	environments = []string{
		"apartment", "house", "room", "bathroom", "kitchen",
		"garage", "car", "building", "office", "school", "street",
	}

	locationPattern = regexp.MustCompile(`\b(?:at|near|around|by)\s+([A-Z0-9][\w\s,.-]{4,80})`)
	peoplePattern   = regexp.MustCompile(`\b(\d+)\s+(?:people|persons|others)\b`)
	alonePattern    = regexp.MustCompile(`\balone\b`)
	sentenceEnd     = regexp.MustCompile(`[.!?](\s|$)`)

	termPatterns sync.Map
)

// Facts is the pinned context accumulated over one call.
type Facts struct {
	EmergencyType string
	Location      string
	Vulnerability string
	People        string
	Hazard        string
	Environment   string
}

// Empty reports whether no fact has been pinned.
func (f Facts) Empty() bool {
	return f == Facts{}
}

// Artifacts are the derived values revealed after the response text.
type Artifacts struct {
	Locations []string
	Summary   string
	Keywords  []string
}

// Memory accumulates Facts across the cycles of one call. It is safe for
// concurrent use; Reset discards everything.
type Memory struct {
	mu    sync.Mutex
	facts Facts
}

// Facts returns the current pinned context.
func (m *Memory) Facts() Facts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.facts
}

// Reset clears pinned context at the end of a call.
func (m *Memory) Reset() {
	m.mu.Lock()
	m.facts = Facts{}
	m.mu.Unlock()
}

// Update folds one utterance into memory. Location facts are only kept when
// consent is true. The updated Facts are returned.
func (m *Memory) Update(utterance string, consent bool) Facts {
	found := Scan(utterance, consent)

	m.mu.Lock()
	defer m.mu.Unlock()
	merge(&m.facts.EmergencyType, found.EmergencyType)
	merge(&m.facts.Location, found.Location)
	merge(&m.facts.Vulnerability, found.Vulnerability)
	merge(&m.facts.People, found.People)
	merge(&m.facts.Hazard, found.Hazard)
	merge(&m.facts.Environment, found.Environment)
	return m.facts
}

func merge(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

// Scan extracts facts from a single utterance.
func Scan(utterance string, consent bool) Facts {
	lower := strings.ToLower(utterance)

	var facts Facts
	facts.EmergencyType = lastCategory(lower, emergencyKinds)
	facts.Vulnerability = lastCategory(lower, vulnerabilities)
	facts.Hazard = lastTerm(lower, hazards)
	facts.Environment = firstTerm(lower, environments)

	if consent {
		facts.Location = Location(utterance)
	}

	switch {
	case alonePattern.MatchString(lower):
		facts.People = "alone"
	default:
		if match := peoplePattern.FindStringSubmatch(lower); match != nil {
			facts.People = match[1] + " people"
		}
	}
	return facts
}

// Location returns the first place phrase introduced by at, near, around or by.
func Location(utterance string) string {
	match := locationPattern.FindStringSubmatch(utterance)
	if match == nil {
		return ""
	}
	return strings.TrimRight(strings.TrimSpace(match[1]), ",.- ")
}

// Derive builds reveal artifacts from facts and the reply text. Keywords
// keep first-seen order without duplicates.
func Derive(facts Facts, replyText string) Artifacts {
	var out Artifacts
	if facts.Location != "" {
		out.Locations = []string{facts.Location}
	}

	out.Keywords = orderedSet(
		facts.EmergencyType,
		facts.Vulnerability,
		facts.Hazard,
		facts.Environment,
	)
	out.Summary = Summarize(facts, replyText)
	return out
}

// Summarize renders pinned facts followed by the first sentence of the reply.
func Summarize(facts Facts, replyText string) string {
	parts := make([]string, 0, 7)
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+": "+value+".")
		}
	}
	add("Emergency", facts.EmergencyType)
	add("Location", facts.Location)
	add("People", facts.People)
	add("Vulnerable", facts.Vulnerability)
	add("Hazard", facts.Hazard)
	add("Setting", facts.Environment)

	if first := firstSentence(replyText); first != "" {
		parts = append(parts, "Advised: "+first)
	}
	return strings.Join(parts, " ")
}

func firstSentence(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	if loc := sentenceEnd.FindStringIndex(text); loc != nil {
		return text[:loc[0]+1]
	}
	return text
}

// lastCategory mirrors repeated overwrites: the last matching category wins.
func lastCategory(lower string, categories []category) string {
	found := ""
	for _, c := range categories {
		for _, term := range c.terms {
			if containsTerm(lower, term) {
				found = c.name
				break
			}
		}
	}
	return found
}

func lastTerm(lower string, terms []string) string {
	found := ""
	for _, term := range terms {
		if containsTerm(lower, term) {
			found = term
		}
	}
	return found
}

func firstTerm(lower string, terms []string) string {
	for _, term := range terms {
		if containsTerm(lower, term) {
			return term
		}
	}
	return ""
}

func containsTerm(lower, term string) bool {
	cached, ok := termPatterns.Load(term)
	if !ok {
		cached, _ = termPatterns.LoadOrStore(term, regexp.MustCompile(`\b`+regexp.QuoteMeta(term)+`\b`))
	}
	return cached.(*regexp.Regexp).MatchString(lower)
}

func orderedSet(values ...string) []string {
	var out []string
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
