// Package weight evaluates the per-feature contribution added to a bin.
package weight

import (
	"fmt"
	"math"
	"strings"

	"github.com/spatialcurrent/go-dfl/dfl"
	"github.com/spf13/cast"
)

// Source yields the weight of one feature from its attributes.
type Source interface {
	// Weight evaluates the contribution of a feature.
	// A non-nil error means the contribution could not be determined.
	Weight(attributes map[string]interface{}) (float64, error)

	// String returns the expression text, or "1" in counting mode.
	String() string
}

// Counting is the default weight source: every feature contributes 1.
var Counting Source = constant{}

type constant struct{}

func (constant) Weight(map[string]interface{}) (float64, error) { return 1, nil }
func (constant) String() string                                 { return "1" }

// Expression evaluates a compiled DFL expression against feature attributes.
//
// Attributes are referenced with '@', e.g. "@population" or
// "@households * 2.5".
type Expression struct {
	text string
	node dfl.Node
}

// Compile parses an expression. An empty expression selects counting mode.
func Compile(expr string) (Source, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Counting, nil
	}
	node, err := dfl.ParseCompile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile weight expression %q: %w", expr, err)
	}
	return &Expression{text: expr, node: node}, nil
}

// Weight evaluates the expression. The result must be a finite, non-negative
// number; anything else is reported as an error.
func (e *Expression) Weight(attributes map[string]interface{}) (float64, error) {
	if attributes == nil {
		attributes = map[string]interface{}{}
	}
	_, result, err := e.node.Evaluate(map[string]interface{}{}, attributes, dfl.FunctionMap{}, dfl.DefaultQuotes)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", e.text, err)
	}

	value, err := toFloat(result)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", e.text, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("evaluate %q: non-finite result %v", e.text, value)
	}
	if value < 0 {
		return 0, fmt.Errorf("evaluate %q: negative result %v", e.text, value)
	}
	return value, nil
}

// String returns the expression text.
func (e *Expression) String() string { return e.text }

// toFloat converts an evaluation result to float64. Null and boolean
// results are rejected rather than coerced to 0 or 1.
func toFloat(v interface{}) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("null result")
	case bool:
		return 0, fmt.Errorf("non-numeric result of type %T", v)
	case string:
		v = strings.TrimSpace(n)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, fmt.Errorf("non-numeric result: %w", err)
	}
	return f, nil
}
