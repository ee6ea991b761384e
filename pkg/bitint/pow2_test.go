// SPDX-License-Identifier: MIT
package bitint

import (
	"fmt"
	"testing"
)

func TestNextPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-10, 1},     // Negative number
		{0, 1},       // Zero
		{1, 1},       // One
		{8, 8},       // Already power of two
		{10, 16},     // Not power of two
		{1000, 1024}, // Typical FFT request
		{3, 4},       // Small non-power
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			result := NextPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("NextPowerOfTwo(%d) = %d, expected %d", tt.n, result, tt.expected)
			}
		})
	}
}

func TestPrevPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected int
	}{
		{-4, 0},
		{0, 0},
		{1, 1},
		{1000, 512},
		{1024, 1024},
		{1025, 1024},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%d", tt.n, tt.expected), func(t *testing.T) {
			result := PrevPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("PrevPowerOfTwo(%d) = %d, expected %d", tt.n, result, tt.expected)
			}
		})
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	tests := []struct {
		n        int
		expected bool
	}{
		{-2, false},     // Negative number
		{0, false},      // Zero
		{1, true},       // One
		{8, true},       // Power of two
		{10, false},     // Not power of two
		{1 << 20, true}, // Large power of two
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d→%t", tt.n, tt.expected), func(t *testing.T) {
			result := IsPowerOfTwo(tt.n)
			if result != tt.expected {
				t.Errorf("IsPowerOfTwo(%d) = %v, expected %v", tt.n, result, tt.expected)
			}
		})
	}
}

func TestLog2(t *testing.T) {
	tests := map[int]int{1: 0, 2: 1, 1024: 10, 3: -1, 0: -1, -8: -1}
	for n, want := range tests {
		if got := Log2(n); got != want {
			t.Errorf("Log2(%d) = %d, expected %d", n, got, want)
		}
	}
}

func BenchmarkNextPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		NextPowerOfTwo(i % 10000)
		i++
	}
}

func BenchmarkIsPowerOfTwo(b *testing.B) {
	var i int
	b.ReportAllocs()
	for b.Loop() {
		IsPowerOfTwo(i % 10000)
		i++
	}
}
