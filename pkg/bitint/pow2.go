/*
Package bitint provides the power-of-two helpers used when sizing FFT blocks
and throttling repeated log lines on the capture path.

All functions are allocation free and constant time, so they are safe to call
from the capture goroutine.

	size := bitint.NextPowerOfTwo(1000) // 1024
	ok := bitint.IsPowerOfTwo(size)     // true

NextPowerOfTwo works on size-1 so that exact powers of two map to themselves:
for 8 (0b1000), 8-1 = 7 (0b0111) has bit length 3 and 1<<3 = 8. Using the raw
value would give bit length 4 and double the input to 16.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of two >= size.
// Zero and negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// PrevPowerOfTwo returns the largest power of two <= size, or 0 when size
// is not positive.
func PrevPowerOfTwo(size int) int {
	if size <= 0 {
		return 0
	}
	return 1 << (bits.Len(uint(size)) - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two. A power of two
// has a single bit set, so clearing its lowest set bit (n & (n-1)) yields 0.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns the exponent of a power of two, or -1 if n is not one.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}
