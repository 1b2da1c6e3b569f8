// internal/window/operators.go
package window

import (
	"math"

	"github.com/tripwirehq/tripwire/internal/types"
)

/*
 * Aggregation operators and the single-pass accumulator.
 *
 * Implements the six window operators over a stream of numeric
 * contributions. The accumulator keeps running mean and M2 (Welford) so
 * standard deviations stay numerically stable without a second pass over
 * the event slice.
 *
 * Null semantics:
 *   - _sum:        0 when nothing contributed
 *   - _avg/_max/_min: nil when nothing contributed
 *   - _stdDevPop:  nil when nothing contributed, 0 for a single value
 *   - _stdDevSamp: nil for fewer than two values (n-1 divisor)
 */

// AggOp is the closed enum of aggregation operators.
type AggOp int

// Aggregation operators.
const (
	AggSum AggOp = iota
	AggAvg
	AggMax
	AggMin
	AggStdDevPop
	AggStdDevSamp
)

// aggOpNames maps wire operator keys to enum values.
var aggOpNames = map[string]AggOp{
	"_sum":        AggSum,
	"_avg":        AggAvg,
	"_max":        AggMax,
	"_min":        AggMin,
	"_stdDevPop":  AggStdDevPop,
	"_stdDevSamp": AggStdDevSamp,
}

// String returns the wire key of the operator.
func (o AggOp) String() string {
	switch o {
	case AggSum:
		return "_sum"
	case AggAvg:
		return "_avg"
	case AggMax:
		return "_max"
	case AggMin:
		return "_min"
	case AggStdDevPop:
		return "_stdDevPop"
	case AggStdDevSamp:
		return "_stdDevSamp"
	default:
		return "_unknown"
	}
}

// parseAggOp resolves a wire key against the closed operator enum.
func parseAggOp(key string) (AggOp, error) {
	op, ok := aggOpNames[key]
	if !ok {
		return 0, &types.ValidationError{Reason: "'" + key + "' is not a valid aggregation operator"}
	}
	return op, nil
}

// accumulator reduces one result field in a single pass.
// Welford's online algorithm: mean and M2 updated per contribution.
type accumulator struct {
	n    int
	sum  float64
	mean float64
	m2   float64
	min  float64
	max  float64
}

// add folds one contribution into the accumulator.
func (a *accumulator) add(v float64) {
	a.n++
	a.sum += v

	delta := v - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (v - a.mean)

	if a.n == 1 {
		a.min = v
		a.max = v
		return
	}
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
}

// finalize produces the operator's result value. Returns nil (not a typed
// nil) when the operator is undefined for the observed contribution count.
func (a *accumulator) finalize(op AggOp) any {
	switch op {
	case AggSum:
		return a.sum
	case AggAvg:
		if a.n == 0 {
			return nil
		}
		return a.mean
	case AggMax:
		if a.n == 0 {
			return nil
		}
		return a.max
	case AggMin:
		if a.n == 0 {
			return nil
		}
		return a.min
	case AggStdDevPop:
		if a.n == 0 {
			return nil
		}
		return math.Sqrt(a.m2 / float64(a.n))
	case AggStdDevSamp:
		if a.n < 2 {
			return nil
		}
		return math.Sqrt(a.m2 / float64(a.n-1))
	default:
		return nil
	}
}
