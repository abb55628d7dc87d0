// Package turn tracks conversational turns for one connection and decides
// whether a recognizer event starts a new turn, amends the previous one,
// or is a duplicate.
package turn

import (
	"regexp"
	"strings"
	"time"
)

// DefaultAmendWindow is how long after finalization a punctuation-only
// re-emission still counts as an amendment.
const DefaultAmendWindow = 2 * time.Second

// Kind is the outcome of classifying a recognizer event.
type Kind int

const (
	// Partial is an in-progress transcript. It never touches sequence state.
	Partial Kind = iota
	// Duplicate is a re-emission of the last finalized text. Emit nothing.
	Duplicate
	// Updated is a punctuation-only amendment of the last finalized turn.
	Updated
	// New is a freshly finalized turn. Only this kind triggers a reply.
	New
)

func (k Kind) String() string {
	switch k {
	case Partial:
		return "partial"
	case Duplicate:
		return "duplicate"
	case Updated:
		return "updated"
	case New:
		return "new"
	default:
		return "unknown"
	}
}

// Turn is one finalized utterance.
type Turn struct {
	Seq        int
	Raw        string
	Normalized string
	At         time.Time
	EndOfTurn  bool
}

// Decision is returned by Classify. Turn is zero for Partial and Duplicate
// unless a prior turn exists, in which case it holds that turn.
type Decision struct {
	Kind Kind
	Turn Turn
}

// nonWord matches anything that is not a letter, digit, mark, underscore or
// space in any script.
var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\p{M}_\s\p{Z}]`)

// Normalize case-folds text, trims it, and strips every character that is
// neither a word character nor whitespace. Used only for comparison.
func Normalize(text string) string {
	return nonWord.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "")
}

// Ledger holds the turn state of one session. It is not safe for
// concurrent use; the recognizer delivers events from a single goroutine.
type Ledger struct {
	amendWindow time.Duration
	now         func() time.Time

	seq  int
	last Turn
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithAmendWindow overrides DefaultAmendWindow.
func WithAmendWindow(d time.Duration) Option {
	return func(l *Ledger) {
		l.amendWindow = d
	}
}

// WithClock replaces time.Now. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// NewLedger creates an empty ledger.
func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{
		amendWindow: DefaultAmendWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Seq returns the sequence number of the last finalized turn, 0 if none.
func (l *Ledger) Seq() int {
	return l.seq
}

// Last returns the last finalized turn.
func (l *Ledger) Last() (Turn, bool) {
	return l.last, l.seq > 0
}

// Classify decides what a recognizer event means for this session.
func (l *Ledger) Classify(transcript string, endOfTurn bool) Decision {
	if !endOfTurn {
		return Decision{Kind: Partial, Turn: Turn{Seq: l.seq, Raw: transcript}}
	}

	now := l.now()
	normalized := Normalize(transcript)

	if l.seq > 0 && normalized == l.last.Normalized {
		if transcript == l.last.Raw {
			return Decision{Kind: Duplicate, Turn: l.last}
		}
		if now.Sub(l.last.At) < l.amendWindow {
			l.last.Raw = transcript
			l.last.At = now
			return Decision{Kind: Updated, Turn: l.last}
		}
	}

	l.seq++
	l.last = Turn{
		Seq:        l.seq,
		Raw:        transcript,
		Normalized: normalized,
		At:         now,
		EndOfTurn:  true,
	}
	return Decision{Kind: New, Turn: l.last}
}
