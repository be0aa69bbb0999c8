// Package reconcile folds an incremental token stream into message
// state updates. It also detects an in-band control marker that
// switches the stream from normal chat output to rewriting the
// conversation's summary document.
package reconcile

import "strings"

// ReplaceMarker is the literal in-band control sequence. Everything
// before it is normal output; everything after it replaces the summary.
const ReplaceMarker = "[replace_summary_with_new_text]"

// Mode is the reconciler state.
type Mode int

const (
	ModeNormal Mode = iota
	ModeReplacing
)

// Sink receives reconciled updates. Implementations decide where the
// text lands (store commit, HTTP stream) and whether a late update
// must be dropped.
type Sink interface {
	// UpdateText receives the full accumulated primary text after each
	// delta while the message is still streaming.
	UpdateText(accumulated string) error

	// ReplacementStarted fires once when the replace marker is seen.
	ReplacementStarted() error

	// UpdateReplacement receives the full replacement text after each
	// delta in replacing mode.
	UpdateReplacement(accumulated string) error
}

// Reconciler folds deltas for a single stream. Not safe for concurrent
// use; one stream is one goroutine.
type Reconciler struct {
	sink Sink
	mode Mode

	accumulated strings.Builder
	replacement strings.Builder

	// carry buffers a trailing partial-marker window across delta
	// boundaries (at most len(ReplaceMarker)-1 bytes) so a marker
	// split by chunking is still detected.
	carry string
}

// New creates a reconciler writing into the sink.
func New(sink Sink) *Reconciler {
	return &Reconciler{sink: sink}
}

// Mode returns the current mode.
func (r *Reconciler) Mode() Mode {
	return r.mode
}

// Feed folds one incoming delta. Deltas are applied strictly in call
// order.
func (r *Reconciler) Feed(delta string) error {
	if delta == "" {
		return nil
	}

	if r.mode == ModeReplacing {
		r.replacement.WriteString(delta)
		return r.sink.UpdateReplacement(r.replacement.String())
	}

	buf := r.carry + delta
	r.carry = ""

	if i := strings.Index(buf, ReplaceMarker); i >= 0 {
		// Un-emitted text sitting before the marker is dropped with
		// it; only updates already sent out remain in the primary
		// output.
		r.mode = ModeReplacing
		if err := r.sink.ReplacementStarted(); err != nil {
			return err
		}
		rest := strings.TrimLeft(buf[i+len(ReplaceMarker):], " \t\r\n")
		if rest != "" {
			r.replacement.WriteString(rest)
			return r.sink.UpdateReplacement(r.replacement.String())
		}
		return nil
	}

	// Hold back any tail that could be the start of a split marker.
	emit := buf
	if tail := markerPrefixSuffix(buf); tail > 0 {
		r.carry = buf[len(buf)-tail:]
		emit = buf[:len(buf)-tail]
	}
	if emit == "" {
		return nil
	}
	r.accumulated.WriteString(emit)
	return r.sink.UpdateText(r.accumulated.String())
}

// Finish ends the stream normally. The held-back tail was not a marker
// after all, so it is flushed into the primary output. It returns the
// final primary text and whether the stream produced no normal output
// (the empty-response condition; the caller decides how to surface it).
func (r *Reconciler) Finish() (final string, empty bool, err error) {
	if r.mode == ModeNormal && r.carry != "" {
		r.accumulated.WriteString(r.carry)
		r.carry = ""
		if err := r.sink.UpdateText(r.accumulated.String()); err != nil {
			return r.accumulated.String(), false, err
		}
	}

	final = r.accumulated.String()
	empty = r.mode == ModeNormal && final == ""
	return final, empty, nil
}

// Replacement returns the replacement text accumulated so far.
func (r *Reconciler) Replacement() string {
	return r.replacement.String()
}

// Accumulated returns the primary text accumulated so far. Partial
// content survives a stream error; nothing is rolled back.
func (r *Reconciler) Accumulated() string {
	return r.accumulated.String()
}

// markerPrefixSuffix returns the length of the longest suffix of s
// that is a proper prefix of ReplaceMarker. Bounded by
// len(ReplaceMarker)-1, which caps the carry window.
func markerPrefixSuffix(s string) int {
	max := len(ReplaceMarker) - 1
	if len(s) < max {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasPrefix(ReplaceMarker, s[len(s)-k:]) {
			return k
		}
	}
	return 0
}
