package shader

import (
	"fmt"

	"github.com/gogpu/naga"

	"github.com/gogpu/compositor/gpu"
	"github.com/gogpu/compositor/internal/cache"
)

// MaxCachedPrograms bounds the compiled programs kept by Compile.
const MaxCachedPrograms = 256

var compiled = cache.New[gpu.ProgramKey, []uint32](MaxCachedPrograms)

// Compile returns the SPIR-V of the program identified by key. The most
// recently used MaxCachedPrograms results are cached.
func Compile(key gpu.ProgramKey) ([]uint32, error) {
	return compiled.GetOrCreate(key, func() ([]uint32, error) {
		src, err := Source(key)
		if err != nil {
			return nil, err
		}
		code, err := CompileWGSL(src)
		if err != nil {
			return nil, fmt.Errorf("shader: %s: %w", key, err)
		}
		return code, nil
	})
}

// CachedPrograms returns the number of compiled programs held.
func CachedPrograms() int { return compiled.Len() }

// CompileWGSL compiles WGSL source to SPIR-V words.
func CompileWGSL(src string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to compile shader: %w", err)
	}

	// SPIR-V is little-endian 32-bit words.
	code := make([]uint32, len(spirvBytes)/4)
	for i := range code {
		code[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return code, nil
}
