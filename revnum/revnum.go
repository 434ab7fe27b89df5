// Package revnum implements the revision-number algebra: total
// ordering, parentage, increment/decrement, and trunk/branch
// classification on dotted integer sequences, as used throughout
// MKSSI RCS masters and project manifests.
package revnum

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxComponents bounds the length of a Number (spec: "bounded by
// implementation constant (at least 22)").
const MaxComponents = 22

// Number is an ordered sequence of positive integers of even length,
// e.g. "1.2" or "1.2.1.4". A zero-length Number is the invalid/empty
// revision; a tip sentinel prints as "tip".
type Number []int

// tip is the sentinel value that serializes as "tip".
var tip = Number{-1}

// Tip returns the sentinel revision number used for the MKSSI "tip"
// of a branch's uncheckpointed state.
func Tip() Number {
	return Number{-1}
}

// IsTip reports whether n is the tip sentinel.
func (n Number) IsTip() bool {
	return len(n) == 1 && n[0] == -1
}

// Parse parses a dot-joined decimal revision number, e.g. "1.4.2.1".
// The literal "tip" parses to the Tip() sentinel.
func Parse(s string) (Number, error) {
	if s == "tip" {
		return Tip(), nil
	}
	parts := strings.Split(s, ".")
	if len(parts) == 0 || len(parts)%2 != 0 {
		return nil, fmt.Errorf("revnum: %q is not an even-length dotted sequence", s)
	}
	if len(parts) > MaxComponents {
		return nil, fmt.Errorf("revnum: %q exceeds max %d components", s, MaxComponents)
	}
	n := make(Number, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("revnum: %q has non-positive-integer component %q", s, p)
		}
		n[i] = v
	}
	return n, nil
}

// MustParse parses s and panics on error; for literals in tests.
func MustParse(s string) Number {
	n, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return n
}

// String serializes n as dot-joined decimals, or "tip" for the
// sentinel.
func (n Number) String() string {
	if n.IsTip() {
		return "tip"
	}
	parts := make([]string, len(n))
	for i, v := range n {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".")
}

// Clone returns an independent copy of n.
func (n Number) Clone() Number {
	c := make(Number, len(n))
	copy(c, n)
	return c
}

// IsTrunk reports whether n is a trunk revision: len(n) == 2.
func (n Number) IsTrunk() bool {
	return len(n) == 2
}

// Equal reports componentwise equality.
func Equal(a, b Number) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Compare orders a and b componentwise over min(len(a), len(b)); ties
// are broken by length, with the longer (more specific, i.e. further
// down a branch) sequence sorting later. A branch root such as 1.2
// therefore sorts before the first commit on that branch, 1.2.1.1.
func Compare(a, b Number) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	if len(a) == len(b) {
		return 0
	}
	if len(a) < len(b) {
		return -1
	}
	return 1
}

// Increment bumps the last component of n (returns a new Number).
func Increment(n Number) Number {
	c := n.Clone()
	c[len(c)-1]++
	return c
}

// Decrement decrements the last component of n. If that makes the
// last component zero on a branch segment (len >= 4), the trailing
// two components are popped (stepping back to the branch root's
// parent branch point). If n is trunk (len == 2) and decrementing
// would reach component 0, there is nothing before 1.1 and Decrement
// returns (nil, false).
func Decrement(n Number) (Number, bool) {
	c := n.Clone()
	c[len(c)-1]--
	if c[len(c)-1] > 0 {
		return c, true
	}
	if len(c) <= 2 {
		return nil, false
	}
	return c[:len(c)-2], true
}

// PartialMatch reports whether num's leading components equal spec in
// full, i.e. num[0:len(spec)] == spec.
func PartialMatch(num, spec Number) bool {
	if len(spec) > len(num) {
		return false
	}
	for i := range spec {
		if num[i] != spec[i] {
			return false
		}
	}
	return true
}

// extendEven appends a trailing 0 to an odd-length Number so that
// branch-root notation (e.g. "1.2.1" meaning the root of branch
// "1.2.1.0") can be compared uniformly with commit notation
// ("1.2.1.3").
func extendEven(n Number) Number {
	if len(n)%2 == 0 {
		return n
	}
	c := make(Number, len(n)+1)
	copy(c, n)
	c[len(c)-1] = 0
	return c
}

// SameBranch reports whether a and b live on the same branch segment.
// Both inputs are extended to even length first; the leading len-1
// components must then match exactly, except that the second-to-last
// component's value of 0 is treated as wildcard-equal to whatever the
// real branch index is in the other operand (handles "N.M.0.P"
// notation for "the branch rooted at N.M, whichever index it is").
func SameBranch(a, b Number) bool {
	ea, eb := extendEven(a), extendEven(b)
	if len(ea) != len(eb) {
		return false
	}
	if len(ea) < 2 {
		return false
	}
	for i := 0; i < len(ea)-1; i++ {
		if i == len(ea)-2 {
			if ea[i] == 0 || eb[i] == 0 || ea[i] == eb[i] {
				continue
			}
			return false
		}
		if ea[i] != eb[i] {
			return false
		}
	}
	return true
}

// Branch returns the branch-root prefix of n (all but the last
// component), used to identify which branch a revision lives on.
func Branch(n Number) Number {
	if len(n) <= 2 {
		return Number{}
	}
	return n[:len(n)-1]
}

// IsAncestor reports whether a is a parent/ancestor of b: either a is
// a strict prefix of b (a is the branch root b hangs off of), or a
// and b are on the same branch and a's last component precedes b's.
func IsAncestor(a, b Number) bool {
	if Equal(a, b) {
		return false
	}
	if len(a) < len(b) && PartialMatch(b, a) {
		return true
	}
	if len(a) == len(b) && SameBranch(a, b) {
		return a[len(a)-1] < b[len(b)-1]
	}
	return false
}
