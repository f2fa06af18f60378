package ir

import "math/big"

// IsPowerOfTwo reports whether c holds a positive power of two.
func (c *ConstInt) IsPowerOfTwo() bool {
	v := c.Val
	if v.Sign() <= 0 {
		return false
	}
	one := big.NewInt(1)
	and := new(big.Int).And(v, new(big.Int).Sub(v, one))
	return and.Sign() == 0
}

// ExactLog2 returns k such that c.Val == 2^k. Panics if called on a
// non-power-of-two, matching the façade
// contract that callers check IsPowerOfTwo first.
func (c *ConstInt) ExactLog2() int {
	if !c.IsPowerOfTwo() {
		panic("ir: ExactLog2 called on a non-power-of-two constant")
	}
	return c.Val.BitLen() - 1
}

// EqInt64 reports whether c's value equals n (compare-with-constant).
func (c *ConstInt) EqInt64(n int64) bool {
	return c.Val.Cmp(big.NewInt(n)) == 0
}

// GTInt64 reports whether c's value is strictly greater than n.
func (c *ConstInt) GTInt64(n int64) bool {
	return c.Val.Cmp(big.NewInt(n)) > 0
}

// AddConst returns a new ConstInt holding c+o, same bit width as c.
func (c *ConstInt) AddConst(o *ConstInt) *ConstInt {
	return NewConstIntBig(c.typ.Width, c.typ.Signed, new(big.Int).Add(c.Val, o.Val))
}

// SubConst returns a new ConstInt holding c-o, same bit width as c.
func (c *ConstInt) SubConst(o *ConstInt) *ConstInt {
	return NewConstIntBig(c.typ.Width, c.typ.Signed, new(big.Int).Sub(c.Val, o.Val))
}
