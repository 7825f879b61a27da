// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/woozymasta/pathrules"
)

// flateReaderPool reuses DEFLATE decompressor state across extractions.
var flateReaderPool = sync.Pool{
	New: func() any {
		return flate.NewReader(bytes.NewReader(nil))
	},
}

// Compress encodes data as a raw DEFLATE stream at the given level.
// Levels follow flate semantics for 0..9; a negative level selects
// DefaultCompressLevel. Empty input yields empty output without error.
func Compress(data []byte, level int) ([]byte, error) {
	if level < 0 {
		level = DefaultCompressLevel
	}

	if level > flate.BestCompression {
		return nil, fmt.Errorf("%w: %d", ErrCompressLevel, level)
	}

	if len(data) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)

	fw, err := flate.NewWriter(&buf, level)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrCompressLevel, level)
	}

	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("deflate write: %w", err)
	}

	if err := fw.Close(); err != nil {
		return nil, fmt.Errorf("deflate close: %w", err)
	}

	return buf.Bytes(), nil
}

// Decompress inflates a raw DEFLATE payload and normalizes its length to
// expectedSize, padding with zeros or truncating; a zero expectedSize
// keeps the inflated length as is. When the stream cannot be inflated
// the input bytes come back unmodified with fallback=true, so damaged
// archives degrade to raw payload instead of failing extraction.
func Decompress(data []byte, expectedSize uint32) (out []byte, fallback bool) {
	if len(data) == 0 {
		return nil, false
	}

	fr := flateReaderPool.Get().(io.ReadCloser)
	defer flateReaderPool.Put(fr)

	if err := fr.(flate.Resetter).Reset(bytes.NewReader(data), nil); err != nil {
		return data, true
	}

	inflated, err := io.ReadAll(fr)
	if cerr := fr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return data, true
	}

	if expectedSize == 0 {
		return inflated, false
	}

	return normalizePayloadLength(inflated, expectedSize), false
}

// normalizePayloadLength pads with zeros or truncates to want bytes.
func normalizePayloadLength(data []byte, want uint32) []byte {
	n := int(want)
	switch {
	case len(data) == n:
		return data
	case len(data) > n:
		return data[:n]
	default:
		padded := make([]byte, n)
		copy(padded, data)
		return padded
	}
}

// CompressPolicy decides which staged payloads are compressed by path.
type CompressPolicy struct {
	matcher *pathrules.Matcher
}

// NewCompressPolicy compiles ordered path rules into a policy. An empty
// rule set yields a policy that never compresses.
func NewCompressPolicy(rules []pathrules.Rule, opts pathrules.MatcherOptions) (*CompressPolicy, error) {
	rules = normalizeCompressRules(rules)
	if len(rules) == 0 {
		return &CompressPolicy{}, nil
	}

	if opts == (pathrules.MatcherOptions{}) {
		opts = pathrules.MatcherOptions{
			CaseInsensitive: true,
			DefaultAction:   pathrules.ActionExclude,
		}
	}

	if opts.DefaultAction == pathrules.ActionUnknown {
		opts.DefaultAction = pathrules.ActionExclude
	}

	matcher, err := pathrules.NewMatcher(rules, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: compile rules: %w", ErrInvalidCompressPattern, err)
	}

	return &CompressPolicy{matcher: matcher}, nil
}

// normalizeCompressRules normalizes rule patterns and drops empty patterns.
func normalizeCompressRules(rules []pathrules.Rule) []pathrules.Rule {
	normalized := make([]pathrules.Rule, 0, len(rules))
	for _, rule := range rules {
		pattern := normalizePathForMatching(rule.Pattern)
		if pattern == "" {
			continue
		}

		normalized = append(normalized, pathrules.Rule{
			Action:  rule.Action,
			Pattern: pattern,
		})
	}

	return normalized
}

// ShouldCompress reports whether path is selected for compression.
func (p *CompressPolicy) ShouldCompress(path string) bool {
	if p == nil || p.matcher == nil {
		return false
	}

	candidate := NormalizePath(path)
	if candidate == "" {
		return false
	}

	return p.matcher.Included(candidate, false)
}

// DefaultCompressPatterns returns path patterns for payload types that
// deflate well: texture dictionaries, models, fragments, visual
// dictionaries, raw DDS textures, and text data.
func DefaultCompressPatterns() []string {
	return []string{"*.wtd", "*.wdr", "*.wft", "*.wvd", "*.dds", "*.xml", "*.txt"}
}

// DefaultCompressPolicy returns the policy used for auto-compression
// during patching: the DefaultCompressPatterns set, case-insensitive.
var DefaultCompressPolicy = sync.OnceValue(func() *CompressPolicy {
	patterns := DefaultCompressPatterns()
	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, pattern := range patterns {
		rules = append(rules, pathrules.Rule{
			Action:  pathrules.ActionInclude,
			Pattern: pattern,
		})
	}

	policy, err := NewCompressPolicy(rules, pathrules.MatcherOptions{
		CaseInsensitive: true,
		DefaultAction:   pathrules.ActionExclude,
	})
	if err != nil {
		// Static literal patterns; compilation cannot fail.
		panic(err)
	}

	return policy
})
