// Package detector finds protected entity spans in free text using the
// built-in Safe Harbor matchers, optional policy-defined matchers, and an
// optional external recognition service.
package detector

import (
	"context"
	"log/slog"
	"sort"

	"phivault/internal/core"
)

// Matcher finds occurrences of one entity category in a text.
type Matcher interface {
	Type() core.EntityType
	Match(text string) []core.Span
}

// Detector runs all matchers over a text and resolves overlaps. Detection is
// read-only and safe for concurrent use.
type Detector struct {
	matchers   []Matcher
	recognizer Recognizer
	skip       map[core.EntityType]struct{}
	logger     *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithRecognizer attaches an external recognition service. Its results are
// merged with the local matchers; failures degrade to local-only detection.
func WithRecognizer(r Recognizer) Option {
	return func(d *Detector) { d.recognizer = r }
}

// WithSkipTypes replaces the default skip-set.
func WithSkipTypes(types []core.EntityType) Option {
	return func(d *Detector) {
		d.skip = make(map[core.EntityType]struct{}, len(types))
		for _, t := range types {
			d.skip[t] = struct{}{}
		}
	}
}

// WithMatchers appends extra matchers after the built-in set.
func WithMatchers(ms ...Matcher) Option {
	return func(d *Detector) { d.matchers = append(d.matchers, ms...) }
}

// WithLogger sets the logger for degradation warnings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// New creates a Detector with the built-in Safe Harbor matchers and the
// default skip-set (medical content is preserved, not substituted).
func New(opts ...Option) *Detector {
	d := &Detector{
		matchers: defaultMatchers(),
		logger:   slog.Default(),
	}
	WithSkipTypes(DefaultSkipTypes())(d)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the non-overlapping entity spans found in text, sorted by
// start offset. The second result reports degraded detection: the external
// recognizer was configured but unavailable, so only local matchers ran.
// Detection never fails outright.
func (d *Detector) Detect(ctx context.Context, text string) ([]core.Span, bool) {
	var spans []core.Span
	degraded := false

	if d.recognizer != nil {
		external, err := d.recognizer.Recognize(ctx, text)
		if err != nil {
			// No protected values in the log line, only the transport error.
			d.logger.WarnContext(ctx, "external recognition unavailable, local matchers only",
				slog.String("error", err.Error()))
			degraded = true
		} else {
			spans = append(spans, external...)
		}
	}

	// Local matchers always run, even alongside the external recognizer:
	// each side catches patterns the other misses.
	for _, m := range d.matchers {
		spans = append(spans, m.Match(text)...)
	}

	spans = resolveOverlaps(spans)

	if len(d.skip) > 0 {
		kept := spans[:0]
		for _, s := range spans {
			if _, skip := d.skip[s.Type]; !skip {
				kept = append(kept, s)
			}
		}
		spans = kept
	}
	return spans, degraded
}

// resolveOverlaps keeps at most one span per text region, preferring higher
// confidence and then longer spans, and returns the survivors sorted by
// start offset.
func resolveOverlaps(spans []core.Span) []core.Span {
	if len(spans) == 0 {
		return nil
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Confidence != spans[j].Confidence {
			return spans[i].Confidence > spans[j].Confidence
		}
		return spans[i].Len() > spans[j].Len()
	})

	var kept []core.Span
	for _, s := range spans {
		overlaps := false
		for _, k := range kept {
			if s.Overlaps(k) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, s)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}
