// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package payload holds the policy program a script host executes.
//
// A [Payload] is an opaque byte buffer plus the chunk name the engine
// reports in error positions and tracebacks. How the bytes were
// produced (go:embed, a generated file, a build step) is not this
// package's concern. The only interpretation performed is framing: a
// buffer that begins with the zstd frame magic is decompressed by
// [Payload.Source], so a build may ship the policy compressed.
//
// [Payload.Digest] is a domain-separated BLAKE3 hash of the decoded
// source, logged at startup so an operator can tell exactly which
// policy a privileged run executed. It is computed on decoded bytes,
// so compressing a payload does not change its digest.
package payload

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// zstdMagic is the little-endian zstd frame magic number 0xFD2FB528.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// maxDecodedSize bounds decompression of a corrupt or hostile frame.
const maxDecodedSize = 64 << 20

// digestKey is the BLAKE3 key for payload digests: the ASCII domain
// name zero-padded to 32 bytes.
var digestKey = [32]byte{
	'o', 's', 'b', 'p', 'b', '.', 'p', 'a', 'y', 'l', 'o', 'a', 'd',
}

// Payload is a named policy program.
type Payload struct {
	// Name is the chunk name used in error messages, e.g. "osbpb.lua".
	Name string

	// Data is the program text, or a zstd frame containing it.
	Data []byte
}

// Compressed reports whether Data is a zstd frame.
func (p Payload) Compressed() bool {
	return bytes.HasPrefix(p.Data, zstdMagic)
}

// Source returns the program text, decompressing Data if needed.
func (p Payload) Source() ([]byte, error) {
	if !p.Compressed() {
		return p.Data, nil
	}

	decoder, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
		zstd.WithDecoderMaxMemory(maxDecodedSize),
	)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	source, err := decoder.DecodeAll(p.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", p.Name, err)
	}
	return source, nil
}

// Digest returns the hex BLAKE3 digest of the decoded source.
func (p Payload) Digest() (string, error) {
	source, err := p.Source()
	if err != nil {
		return "", err
	}

	hasher, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		return "", fmt.Errorf("creating payload hasher: %w", err)
	}
	hasher.Write(source)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// LogValue summarizes the payload for structured logs.
func (p Payload) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", p.Name),
		slog.Int("size", len(p.Data)),
		slog.Bool("compressed", p.Compressed()),
	}
	if digest, err := p.Digest(); err == nil {
		attrs = append(attrs, slog.String("blake3", digest))
	}
	return slog.GroupValue(attrs...)
}
