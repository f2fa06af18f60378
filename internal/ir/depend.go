package ir

// DepResult is what the dependence oracle reports for a pair of
// memory-touching instructions: either a known distance (in loop
// iterations) or "unknown", which a conservative caller treats as unsafe.
type DepResult struct {
	Known    bool
	Distance int64
}

// Unknown is the conservative default: "cannot prove independence".
var Unknown = DepResult{Known: false}

// Depends computes the dependence distance between two memory-touching
// instructions a (assumed to execute in an earlier loop iteration space)
// and b. Accesses to different symbolic bases are reported as a known
// distance of 0 (no dependence). For the same base, both accesses must be
// "base + c*iv + d" with a non-nil IV and the same non-zero coefficient c;
// the two IVs are not required to be the same instruction, and are taken
// to advance in lockstep (as they do once two loops are fused). Per §9's
// resolution of the dependence-oracle open question, this is a real but
// narrow affine check: any other same-base pattern is reported Unknown.
func Depends(a, b *Instruction) DepResult {
	if a.Mem == nil || b.Mem == nil {
		return Unknown
	}
	if a.Mem.Base != b.Mem.Base {
		return DepResult{Known: true, Distance: 0} // provably different arrays: no dependence
	}
	if a.Mem.IV == nil || b.Mem.IV == nil || a.Mem.Coeff != b.Mem.Coeff || a.Mem.Coeff == 0 {
		return Unknown
	}
	// Once fused, a and b execute at the same shared induction variable
	// value j: a touches index coeff*j+a.Const and b touches
	// coeff*j+b.Const. a reaches b's index at iteration
	// j+(b.Const-a.Const)/coeff, which must not be later than j, so
	// distance = (a.Const - b.Const)/coeff must be non-negative for the
	// dependence to be fusion-safe (a negative distance means b needs a's
	// future iteration, which hasn't run yet in the fused loop).
	diff := a.Mem.Const - b.Mem.Const
	if diff%a.Mem.Coeff != 0 {
		return Unknown
	}
	return DepResult{Known: true, Distance: diff / a.Mem.Coeff}
}

// NoNegativeDistance checks every pair of memory-touching instructions
// across two instruction sets for a fusion-unsafe (negative-distance)
// dependence, per §4.3.1 precondition 4. Any pair the oracle cannot prove
// safe is conservatively rejected.
func NoNegativeDistance(firstBody, secondBody []*Instruction) bool {
	var firstMem, secondMem []*Instruction
	for _, i := range firstBody {
		if i.Op == OpLoad || i.Op == OpStore {
			firstMem = append(firstMem, i)
		}
	}
	for _, i := range secondBody {
		if i.Op == OpLoad || i.Op == OpStore {
			secondMem = append(secondMem, i)
		}
	}
	for _, a := range firstMem {
		for _, b := range secondMem {
			res := Depends(a, b)
			if !res.Known {
				return false
			}
			if res.Distance < 0 {
				return false
			}
		}
	}
	return true
}
