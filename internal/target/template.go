package target

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/valyala/fasttemplate"
)

/*
 * Placeholder rendering for target headers and bodies.
 *
 * Templates use {{path.to.value}} placeholders resolved against the
 * dispatch context {event, eventType, rule}. The context is flattened to
 * a JSON object tree once per dispatch; each placeholder walks the tree by
 * dotted path.
 *
 * Rendering rules:
 *   - scalar values render via their JSON representation (no quotes for
 *     strings, so placeholders compose inside larger strings)
 *   - composite values render as compact JSON
 *   - unresolved paths render as the empty string
 *
 * fasttemplate does the substitution; this file only supplies the tag
 * resolver. No template language of our own.
 */

// renderContext is the resolved placeholder tree for one dispatch.
type renderContext struct {
	tree map[string]any
}

// newRenderContext flattens the dispatch context into a JSON object tree.
// Marshaling through JSON normalizes struct fields to their wire names, so
// placeholder paths match the public API shapes.
func newRenderContext(parts map[string]any) (*renderContext, error) {
	raw, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("render context: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("render context: %w", err)
	}
	return &renderContext{tree: tree}, nil
}

// lookup walks the tree by dotted path. The boolean is false when any
// segment is absent.
func (c *renderContext) lookup(path string) (any, bool) {
	var current any = c.tree
	for _, segment := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// render substitutes every {{path}} placeholder in template.
func (c *renderContext) render(template string) string {
	return fasttemplate.ExecuteFuncString(template, "{{", "}}", func(w io.Writer, tag string) (int, error) {
		value, ok := c.lookup(strings.TrimSpace(tag))
		if !ok || value == nil {
			return 0, nil
		}
		return w.Write([]byte(renderValue(value)))
	})
}

// renderValue converts a resolved value to its placeholder text.
func renderValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(raw)
	}
}
