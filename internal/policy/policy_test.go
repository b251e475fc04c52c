package policy

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

// (P7) dynamicMinConf(a, d) is a step function with exactly two
// breakpoints at 50*10^d and 100*10^d.
func TestDynamicMinConf_Breakpoints(t *testing.T) {
	d := int32(12)
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(d)), nil)

	below := new(big.Int).Mul(big.NewInt(10), scale)
	atLow := new(big.Int).Mul(big.NewInt(50), scale)
	between := new(big.Int).Mul(big.NewInt(75), scale)
	atHigh := new(big.Int).Mul(big.NewInt(100), scale)
	above := new(big.Int).Mul(big.NewInt(150), scale)

	assert.Equal(t, 1, DynamicMinConf(below, d))
	assert.Equal(t, 3, DynamicMinConf(atLow, d))
	assert.Equal(t, 3, DynamicMinConf(between, d))
	assert.Equal(t, 6, DynamicMinConf(atHigh, d))
	assert.Equal(t, 6, DynamicMinConf(above, d))
}

func TestDynamicMinConf_ZeroDecimals(t *testing.T) {
	assert.Equal(t, 1, DynamicMinConf(big.NewInt(10), 0))
	assert.Equal(t, 3, DynamicMinConf(big.NewInt(60), 0))
	assert.Equal(t, 6, DynamicMinConf(big.NewInt(120), 0))
}
