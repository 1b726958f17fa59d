package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/coreos/go-semver/semver"
	"github.com/tetratelabs/wazero"

	isolates "github.com/wippyai/isolates"
)

// Code-cache blobs are an envelope, not machine code: a magic, the producing
// module version, and a digest of the source. Acceptance keys the compile
// into the process-wide wazero compilation cache, which holds the actual
// compiled artifacts; rejection falls back to a full compile. Either way the
// compiled output is behaviorally identical.

var cacheMagic = []byte{'I', 'C', 'C', '1'}

var (
	compilationCache     wazero.CompilationCache
	compilationCacheOnce sync.Once
)

// sharedCompilationCache returns the process-wide compilation cache shared
// by every heap. Initialized on first use; no teardown beyond process exit.
func sharedCompilationCache() wazero.CompilationCache {
	compilationCacheOnce.Do(func() {
		compilationCache = wazero.NewCompilationCache()
	})
	return compilationCache
}

// buildCachedCode produces a cache blob for the given source.
func buildCachedCode(code []byte) []byte {
	digest := sha256.Sum256(code)
	out := make([]byte, 0, len(cacheMagic)+1+len(isolates.Version)+len(digest))
	out = append(out, cacheMagic...)
	out = binary.AppendUvarint(out, uint64(len(isolates.Version)))
	out = append(out, isolates.Version...)
	out = append(out, digest[:]...)
	return out
}

// cachedCodeMatches reports whether blob is a cache envelope this version of
// the module accepts for the given source.
func cachedCodeMatches(blob, code []byte) bool {
	if !bytes.HasPrefix(blob, cacheMagic) {
		return false
	}
	rest := blob[len(cacheMagic):]
	n, sz := binary.Uvarint(rest)
	if sz <= 0 || n > uint64(len(rest)-sz) {
		return false
	}
	version := string(rest[sz : sz+int(n)])
	rest = rest[sz+int(n):]
	if len(rest) != sha256.Size {
		return false
	}
	if !versionCompatible(version) {
		return false
	}
	digest := sha256.Sum256(code)
	return bytes.Equal(rest, digest[:])
}

// versionCompatible accepts blobs produced by the same major version, no
// newer than the running minor version.
func versionCompatible(produced string) bool {
	got, err := semver.NewVersion(produced)
	if err != nil {
		return false
	}
	own := semver.New(isolates.Version)
	if got.Major != own.Major {
		return false
	}
	return got.Minor <= own.Minor
}
