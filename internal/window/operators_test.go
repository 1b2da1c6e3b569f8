// internal/window/operators_test.go
package window

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestAccumulator_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("sum of literal 1 equals contribution count", prop.ForAll(
		func(n int) bool {
			var a accumulator
			for i := 0; i < n; i++ {
				a.add(1)
			}
			return a.finalize(AggSum) == float64(n)
		},
		gen.IntRange(0, 1000),
	))

	properties.Property("std dev is non-negative and min <= avg <= max", prop.ForAll(
		func(values []float64) bool {
			var a accumulator
			for _, v := range values {
				a.add(v)
			}
			if len(values) == 0 {
				return a.finalize(AggAvg) == nil
			}

			avg := a.finalize(AggAvg).(float64)
			min := a.finalize(AggMin).(float64)
			max := a.finalize(AggMax).(float64)
			pop := a.finalize(AggStdDevPop).(float64)

			const eps = 1e-9
			return pop >= 0 && min <= avg+eps && avg <= max+eps
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.Property("population and sample std dev agree in the limit relation", prop.ForAll(
		func(values []float64) bool {
			if len(values) < 2 {
				return true
			}
			var a accumulator
			for _, v := range values {
				a.add(v)
			}
			pop := a.finalize(AggStdDevPop).(float64)
			samp := a.finalize(AggStdDevSamp).(float64)

			// samp^2 * (n-1) == pop^2 * n
			n := float64(len(values))
			return math.Abs(samp*samp*(n-1)-pop*pop*n) < 1e-3*math.Max(1, pop*pop*n)
		},
		gen.SliceOf(gen.Float64Range(-1e6, 1e6)),
	))

	properties.TestingRun(t)
}
