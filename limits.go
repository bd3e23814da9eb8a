package densitytree

import (
	"fmt"

	"github.com/casbin/govaluate"
)

// SplitLimits decides whether a cell is refined further during
// [SplitAndCount]. The outer call sees the totals once; the returned
// predicate is then asked per cell with its depth, volume and count,
// and the cell is split while it returns true.
type SplitLimits func(totalVolume float64, totalCount uint64) func(depth int, volume float64, count uint64) bool

// StandardLimits splits a cell while it still holds more than half of
// all samples, or while the mass missing from it could hide structure:
// (1 - count/total) * volume > volumeFraction * totalVolume.
func StandardLimits(volumeFraction float64) SplitLimits {
	return func(totalVolume float64, totalCount uint64) func(int, float64, uint64) bool {
		return func(_ int, volume float64, count uint64) bool {
			if count > totalCount/2 {
				return true
			}
			return (1-float64(count)/float64(totalCount))*volume > volumeFraction*totalVolume
		}
	}
}

// DepthLimits splits every cell holding at least minCount samples until
// the given depth.
func DepthLimits(maxDepth int, minCount uint64) SplitLimits {
	return func(float64, uint64) func(int, float64, uint64) bool {
		return func(depth int, _ float64, count uint64) bool {
			return depth < maxDepth && count >= minCount
		}
	}
}

// ParseSplitLimits compiles a boolean expression into split limits.
// The expression sees the parameters depth, volume, count, totalVolume
// and totalCount, for example:
//
//	count > totalCount/2 || (1 - count/totalCount)*volume > 0.001*totalVolume
//
// The expression is parsed once; evaluation errors at split time, such
// as an expression that does not yield a boolean, panic.
func ParseSplitLimits(expr string) (SplitLimits, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing split limits expression: %w", err)
	}
	return func(totalVolume float64, totalCount uint64) func(int, float64, uint64) bool {
		params := map[string]interface{}{
			"totalVolume": totalVolume,
			"totalCount":  float64(totalCount),
		}
		return func(depth int, volume float64, count uint64) bool {
			params["depth"] = float64(depth)
			params["volume"] = volume
			params["count"] = float64(count)
			result, err := compiled.Evaluate(params)
			if err != nil {
				panic(fmt.Sprintf("densitytree: evaluating split limits: %v", err))
			}
			b, ok := result.(bool)
			if !ok {
				panic(fmt.Sprintf("densitytree: split limits expression yields %T, want bool", result))
			}
			return b
		}
	}, nil
}
