// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	cpuid "golang.org/x/sys/cpu"
)

// simdBlockSize returns the number of float32 lanes of the widest vector
// unit, used as the default block size.
func simdBlockSize() int {
	switch {
	case cpuid.X86.HasAVX512:
		return 16
	case cpuid.X86.HasAVX2, cpuid.X86.HasAVX:
		return 8
	case cpuid.X86.HasSSE2, cpuid.ARM64.HasASIMD:
		return 4
	default:
		return 1
	}
}

// simdName names the vector unit behind simdBlockSize.
func simdName() string {
	switch {
	case cpuid.X86.HasAVX512:
		return "avx512"
	case cpuid.X86.HasAVX2:
		return "avx2"
	case cpuid.X86.HasAVX:
		return "avx"
	case cpuid.X86.HasSSE2:
		return "sse2"
	case cpuid.ARM64.HasASIMD:
		return "neon"
	default:
		return "scalar"
	}
}
