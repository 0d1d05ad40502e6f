package capture

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// aggregator merges recognizer segments into one utterance.
// Interim hypotheses only mark that speech was heard.
type aggregator struct {
	finals []string
	heard  bool
}

func (a *aggregator) Add(seg Segment) {
	text := strings.TrimSpace(seg.Text)
	if text == "" {
		return
	}
	a.heard = true
	if seg.Final || seg.SpeechFinal {
		a.finals = append(a.finals, text)
	}
}

func (a *aggregator) Heard() bool {
	return a.heard
}

func (a *aggregator) HasFinal() bool {
	return len(a.finals) > 0
}

// Text returns the merged final transcript.
func (a *aggregator) Text() string {
	return normalize(strings.Join(a.finals, " "))
}

// normalize collapses whitespace and capitalizes the first letter.
func normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(text)
	if unicode.IsLower(r) {
		return string(unicode.ToUpper(r)) + text[size:]
	}
	return text
}
