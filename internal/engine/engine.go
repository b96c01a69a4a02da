// Package engine performs reversible entity substitution over free text and
// structured documents. It owns the transform algorithms; identity
// resolution and audit live in the service facade above it.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"

	"phivault/internal/cache"
	"phivault/internal/core"
	"phivault/internal/detector"
	"phivault/internal/generator"
	"phivault/internal/vault"
)

// maxMappingAttempts bounds retries when generated fake values keep
// colliding with existing mappings in the scope.
const maxMappingAttempts = 16

// Stats summarizes one transform: how many entity occurrences were
// substituted (or restored) and of which categories.
type Stats struct {
	EntityCount int
	ByType      map[string]int
	// DetectionDegraded is set when the external recognizer was configured
	// but unreachable, so only local matchers ran. The transform result is
	// still valid.
	DetectionDegraded bool
}

func newStats() *Stats {
	return &Stats{ByType: make(map[string]int)}
}

func (s *Stats) merge(o *Stats) {
	s.EntityCount += o.EntityCount
	s.DetectionDegraded = s.DetectionDegraded || o.DetectionDegraded
	for t, n := range o.ByType {
		s.ByType[t] += n
	}
}

// Engine transforms text for one direction or the other against a resolved
// identity. Safe for concurrent use.
type Engine struct {
	store    vault.Store
	detector *detector.Detector
	gen      *generator.Generator
	cache    cache.MappingCache
	logger   *slog.Logger
}

// New creates an Engine. A nil cache disables caching; a nil logger falls
// back to slog.Default.
func New(store vault.Store, det *detector.Detector, gen *generator.Generator, mc cache.MappingCache, logger *slog.Logger) *Engine {
	if mc == nil {
		mc = cache.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, detector: det, gen: gen, cache: mc, logger: logger}
}

// mappingKey deduplicates lookups within a single transform call.
type mappingKey struct {
	entityType    core.EntityType
	originalValue string
}

// AnonymizeText detects entities in text and replaces each with the scope's
// fake value, creating mappings on first sight. Repeated occurrences of one
// original always get the same fake value.
func (e *Engine) AnonymizeText(ctx context.Context, identity *core.Identity, text string) (string, *Stats, error) {
	spans, degraded := e.detector.Detect(ctx, text)

	stats := newStats()
	stats.DetectionDegraded = degraded
	if len(spans) == 0 {
		return text, stats, nil
	}

	local := make(map[mappingKey]string)
	createdAny := false

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, span := range spans {
		fake, created, err := e.resolveFake(ctx, identity, span, local)
		if err != nil {
			return "", nil, err
		}
		createdAny = createdAny || created

		b.WriteString(text[cursor:span.Start])
		b.WriteString(fake)
		cursor = span.End

		stats.EntityCount++
		stats.ByType[string(span.Type)]++
	}
	b.WriteString(text[cursor:])

	if createdAny {
		e.cache.Invalidate(ctx, identity.UUID)
	}
	return b.String(), stats, nil
}

// resolveFake returns the fake value for one detected span, creating the
// mapping when the scope has not seen this original before. The store
// arbitrates races: whichever caller inserts first wins and everyone else
// adopts the winning fake value.
func (e *Engine) resolveFake(ctx context.Context, identity *core.Identity, span core.Span, local map[mappingKey]string) (string, bool, error) {
	key := mappingKey{span.Type, span.Value}
	if fake, ok := local[key]; ok {
		return fake, false, nil
	}

	existing, err := e.store.FindMapping(ctx, identity.UUID, span.Type, span.Value)
	if err != nil {
		return "", false, err
	}
	if existing != nil {
		local[key] = existing.FakeValue
		return existing.FakeValue, false, nil
	}

	// The generator retries candidates that already map to a different
	// original in this scope; the insert below remains the authority for the
	// race window between check and insert.
	taken := func(candidate string) bool {
		exists, terr := e.store.FakeValueExists(ctx, identity.UUID, candidate)
		return terr == nil && exists
	}

	for attempt := 0; attempt < maxMappingAttempts; attempt++ {
		fakeType, candidate, err := e.gen.Generate(span.Type, span.Value, taken)
		if err != nil {
			return "", false, err
		}

		m, err := e.store.CreateMappingIfAbsent(ctx, &core.Mapping{
			IdentityUUID:  identity.UUID,
			EntityType:    span.Type,
			OriginalValue: span.Value,
			FakeType:      fakeType,
			FakeValue:     candidate,
		})
		if errors.Is(err, vault.ErrFakeValueTaken) {
			continue
		}
		if err != nil {
			return "", false, err
		}
		local[key] = m.FakeValue
		return m.FakeValue, true, nil
	}
	return "", false, core.NewGenerationExhaustedError(span.Type)
}

// DeAnonymizeText restores original values for every fake value of the
// scope present in text. Longer fake values are replaced first so that a
// fake value containing another as a substring cannot corrupt the result.
func (e *Engine) DeAnonymizeText(ctx context.Context, identity *core.Identity, text string) (string, *Stats, error) {
	mappings, err := e.scopeMappings(ctx, identity.UUID)
	if err != nil {
		return "", nil, err
	}

	stats := newStats()
	if len(mappings) == 0 {
		return text, stats, nil
	}

	// Single multi-pattern scan finds which fake values occur at all;
	// replacement then only touches those.
	dict := make([][]byte, len(mappings))
	for i, m := range mappings {
		dict[i] = []byte(m.FakeValue)
	}
	present := make([]core.Mapping, 0, 8)
	for _, hit := range ahocorasick.NewMatcher(dict).Match([]byte(text)) {
		present = append(present, mappings[hit])
	}
	sort.SliceStable(present, func(i, j int) bool {
		return len(present[i].FakeValue) > len(present[j].FakeValue)
	})

	out := text
	for _, m := range present {
		n := strings.Count(out, m.FakeValue)
		if n == 0 {
			continue
		}
		out = strings.ReplaceAll(out, m.FakeValue, m.OriginalValue)
		stats.EntityCount += n
		stats.ByType[string(m.EntityType)] += n
	}
	return out, stats, nil
}

// scopeMappings loads the scope's full mapping set, preferring the cache.
func (e *Engine) scopeMappings(ctx context.Context, identityUUID string) ([]core.Mapping, error) {
	if mappings, ok := e.cache.Get(ctx, identityUUID); ok {
		return mappings, nil
	}
	mappings, err := e.store.MappingsByScope(ctx, identityUUID)
	if err != nil {
		return nil, err
	}
	if len(mappings) > 0 {
		e.cache.Set(ctx, identityUUID, mappings)
	}
	return mappings, nil
}
