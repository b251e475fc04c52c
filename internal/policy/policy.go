// Package policy implements the Confirmation Policy: a pure function
// deciding how many confirmations a given deposit amount must clear.
package policy

import "math/big"

// DynamicMinConf is a step function of the observed atomic amount with
// exactly two breakpoints, at 50*10^decimals and 100*10^decimals:
//
//	< 50 * 10^decimals  -> 1
//	< 100 * 10^decimals -> 3
//	>= 100 * 10^decimals -> 6
func DynamicMinConf(atomicAmount *big.Int, decimals int32) int {
	if atomicAmount == nil {
		return 1
	}

	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	lowBreak := new(big.Int).Mul(big.NewInt(50), scale)
	highBreak := new(big.Int).Mul(big.NewInt(100), scale)

	switch {
	case atomicAmount.Cmp(lowBreak) < 0:
		return 1
	case atomicAmount.Cmp(highBreak) < 0:
		return 3
	default:
		return 6
	}
}
