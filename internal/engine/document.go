package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"phivault/internal/core"
)

// maxDocumentDepth bounds recursion over structured documents so a
// pathologically nested payload cannot exhaust the stack.
const maxDocumentDepth = 128

// TransformDocument walks a decoded JSON document and transforms every
// string leaf in the given direction. Object keys, numbers, booleans, and
// nulls pass through untouched; the shape of the document is preserved
// exactly. Unsupported node types and excessive nesting yield an
// InvalidDocument error.
func (e *Engine) TransformDocument(ctx context.Context, identity *core.Identity, doc any, direction core.Direction) (any, *Stats, error) {
	w := &docWalker{engine: e, identity: identity, direction: direction, stats: newStats()}
	out, err := w.walk(ctx, doc, 0)
	if err != nil {
		return nil, nil, err
	}
	return out, w.stats, nil
}

type docWalker struct {
	engine    *Engine
	identity  *core.Identity
	direction core.Direction
	stats     *Stats
}

func (w *docWalker) walk(ctx context.Context, node any, depth int) (any, error) {
	if depth > maxDocumentDepth {
		return nil, core.NewInvalidDocumentError(fmt.Sprintf("document exceeds maximum nesting depth %d", maxDocumentDepth))
	}

	switch v := node.(type) {
	case nil:
		return nil, nil

	case string:
		return w.transformString(ctx, v)

	case map[string]any:
		out := make(map[string]any, len(v))
		for key, child := range v {
			transformed, err := w.walk(ctx, child, depth+1)
			if err != nil {
				return nil, err
			}
			out[key] = transformed
		}
		return out, nil

	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			transformed, err := w.walk(ctx, child, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = transformed
		}
		return out, nil

	case bool, float64, int, int64, json.Number:
		return v, nil

	default:
		return nil, core.NewInvalidDocumentError(fmt.Sprintf("unsupported node type %T", node))
	}
}

func (w *docWalker) transformString(ctx context.Context, s string) (string, error) {
	var (
		out   string
		stats *Stats
		err   error
	)
	if w.direction == core.DirectionDeAnonymize {
		out, stats, err = w.engine.DeAnonymizeText(ctx, w.identity, s)
	} else {
		out, stats, err = w.engine.AnonymizeText(ctx, w.identity, s)
	}
	if err != nil {
		return "", err
	}
	w.stats.merge(stats)
	return out, nil
}
