// Package gate applies the ambiguity policy to each located abbreviation
// and decides between automatic application, escalation to a human
// reviewer, and logging as unresolved.
//
// Escalation is a request/response exchange: the gate emits a Request on
// its review channel and only that record's resolution is suspended; the
// owning worker keeps processing the rest of its document.
package gate

import (
	"context"

	"github.com/FocuswithJustin/Amanuensis/core/suggest"
	"github.com/FocuswithJustin/Amanuensis/core/tei"
	"github.com/FocuswithJustin/Amanuensis/internal/logging"
)

// Policy holds the configured ambiguity rules.
type Policy struct {
	// Ambiguous is the set of normalized keys that are never
	// auto-resolved: the same form expands differently depending on
	// context the engine cannot observe.
	Ambiguous map[string]bool
	// AutoApplyThreshold is the minimum confidence for auto-applying a
	// machine-confirmed or lexicon suggestion.
	AutoApplyThreshold float64
}

// DefaultAutoApplyThreshold matches the lexicon confidence tier: lexicon
// and learned-machine hits qualify, pattern and model guesses do not.
const DefaultAutoApplyThreshold = 0.85

// NewPolicy builds a policy from the configured ambiguous-key list.
func NewPolicy(ambiguousKeys []string, threshold float64) *Policy {
	set := make(map[string]bool, len(ambiguousKeys))
	for _, k := range ambiguousKeys {
		set[k] = true
	}
	if threshold <= 0 {
		threshold = DefaultAutoApplyThreshold
	}
	return &Policy{Ambiguous: set, AutoApplyThreshold: threshold}
}

// Outcome is the gate's decision for one record.
type Outcome int

const (
	// OutcomeAutoApply commits the chosen text without review.
	OutcomeAutoApply Outcome = iota
	// OutcomeEscalate queues the record for human review.
	OutcomeEscalate
	// OutcomeUnresolved logs the record for later analysis.
	OutcomeUnresolved
)

// Decide evaluates the transition rules in order and returns the outcome
// and, for OutcomeAutoApply, the chosen expansion text.
func (p *Policy) Decide(key string, suggestions []suggest.Suggestion) (Outcome, string) {
	// Ambiguous keys are never auto-applied, dictionary or not.
	if p.Ambiguous[key] {
		if len(suggestions) == 0 {
			return OutcomeUnresolved, ""
		}
		return OutcomeEscalate, ""
	}
	if len(suggestions) == 0 {
		return OutcomeUnresolved, ""
	}
	top := suggestions[0]
	if top.Source == suggest.SourceLearnedUser {
		return OutcomeAutoApply, top.Text
	}
	if top.Confidence > p.AutoApplyThreshold &&
		(top.Source == suggest.SourceLearnedMachine || top.Source == suggest.SourceLexicon) {
		return OutcomeAutoApply, top.Text
	}
	return OutcomeEscalate, ""
}

// ReviewAction is the reviewer's choice for an escalated record.
type ReviewAction int

const (
	// ReviewAccept resolves the record with the decision's text.
	ReviewAccept ReviewAction = iota
	// ReviewDifficult logs a difficult passage and leaves the record
	// unresolved.
	ReviewDifficult
	// ReviewSkip leaves the record unresolved without logging.
	ReviewSkip
)

// Decision is the reviewer's reply to a Request.
type Decision struct {
	Action ReviewAction
	Text   string
}

// Request is one escalated record awaiting a human decision. Requests
// from all workers are funnelled into a single ordered review stream.
type Request struct {
	DocPath string
	Record  *tei.Abbreviation
	Reply   chan Decision
}

// Recorder is the gate's write view of the learned-dictionary store.
type Recorder interface {
	// RecordMachine notes an auto-applied resolution.
	RecordMachine(ctx context.Context, key, text string) error
	// RecordUser notes a human-confirmed resolution. User entries take
	// precedence over machine entries with the same key.
	RecordUser(ctx context.Context, key, text string) error
	// RecordUnresolved counts a key that produced no resolution.
	RecordUnresolved(ctx context.Context, key, context string) error
	// RecordDifficult logs a passage flagged by the reviewer.
	RecordDifficult(ctx context.Context, docPath, locator, passage, key string) error
}

// Gate runs records through the policy and routes escalations.
type Gate struct {
	policy   *Policy
	recorder Recorder
	reviews  chan<- *Request
	// Quiet forces every escalation to fall through to Unresolved
	// instead of blocking on a human.
	Quiet bool
}

// New creates a gate. reviews may be nil when Quiet is set.
func New(policy *Policy, recorder Recorder, reviews chan<- *Request, quiet bool) *Gate {
	return &Gate{policy: policy, recorder: recorder, reviews: reviews, Quiet: quiet}
}

// Process decides a record's fate. Auto-applied and unresolved records
// reach their terminal status before return; escalations return a non-nil
// Request whose Reply the caller must settle (via Settle) before the
// owning document can complete.
func (g *Gate) Process(ctx context.Context, docPath string, rec *tei.Abbreviation) (*Request, error) {
	outcome, text := g.policy.Decide(rec.Key, rec.Suggestions)

	switch outcome {
	case OutcomeAutoApply:
		rec.Status = tei.StatusAutoApplied
		rec.Resolution = text
		if err := g.recorder.RecordMachine(ctx, rec.Key, text); err != nil {
			return nil, err
		}
		return nil, nil

	case OutcomeEscalate:
		if g.Quiet {
			logging.ReviewEvent("escalation_suppressed", rec.Key, "path", docPath)
			return nil, g.markUnresolved(ctx, rec)
		}
		req := &Request{DocPath: docPath, Record: rec, Reply: make(chan Decision, 1)}
		rec.Status = tei.StatusPendingReview
		select {
		case g.reviews <- req:
			return req, nil
		case <-ctx.Done():
			return nil, g.markUnresolved(ctx, rec)
		}

	default:
		return nil, g.markUnresolved(ctx, rec)
	}
}

// Settle waits for the reviewer's decision on an escalated record and
// applies it. Accepted decisions always write to the user-confirmed
// namespace, whichever suggestion (or free text) the reviewer chose.
func (g *Gate) Settle(ctx context.Context, req *Request) error {
	rec := req.Record
	select {
	case decision := <-req.Reply:
		switch decision.Action {
		case ReviewAccept:
			if decision.Text == "" {
				return g.markUnresolved(ctx, rec)
			}
			rec.Status = tei.StatusUserApplied
			rec.Resolution = decision.Text
			logging.ReviewEvent("accepted", rec.Key, "text", decision.Text)
			return g.recorder.RecordUser(ctx, rec.Key, decision.Text)
		case ReviewDifficult:
			passage := contextString(rec)
			if err := g.recorder.RecordDifficult(ctx, req.DocPath, string(rec.Locator), passage, rec.Key); err != nil {
				return err
			}
			return g.markUnresolved(ctx, rec)
		default:
			return g.markUnresolved(ctx, rec)
		}
	case <-ctx.Done():
		return g.markUnresolved(ctx, rec)
	}
}

func (g *Gate) markUnresolved(ctx context.Context, rec *tei.Abbreviation) error {
	rec.Status = tei.StatusUnresolved
	rec.Resolution = ""
	return g.recorder.RecordUnresolved(ctx, rec.Key, contextString(rec))
}

func contextString(rec *tei.Abbreviation) string {
	out := ""
	for _, t := range rec.Context.Before {
		out += t + " "
	}
	out += rec.Raw
	for _, t := range rec.Context.After {
		out += " " + t
	}
	return out
}
