// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rsc

// semantic identifies the source attribute of one vertex field.
type semantic uint8

const (
	semanticPosition semantic = iota
	semanticNormal
	semanticTexcoord
	semanticColor
	semanticTangent
	semanticBoneWeights
	semanticBoneIndices
)

// vertexField is one attribute slot: its semantic, packed byte size and
// byte offset within the vertex record.
type vertexField struct {
	semantic semantic
	size     int
	offset   int
}

// declaration is an ordered vertex layout with its stride and format
// flags word. A field whose offset plus size exceeds the stride is
// declared but not packed; the record stays stride bytes.
type declaration struct {
	stride int
	flags  uint32
	fields []vertexField
}

// declarations holds the per-target vertex layouts; never mutated.
// The rdr1 color field lies past the 32-byte stride and is carried for
// layout compatibility only.
var declarations = map[Target]declaration{
	TargetRDR1: {
		stride: 32,
		flags:  0x0001,
		fields: []vertexField{
			{semantic: semanticPosition, size: 12, offset: 0},
			{semantic: semanticNormal, size: 12, offset: 12},
			{semantic: semanticTexcoord, size: 8, offset: 24},
			{semantic: semanticColor, size: 4, offset: 32},
		},
	},
	TargetRDR2: {
		stride: 44,
		flags:  0x0201,
		fields: []vertexField{
			{semantic: semanticPosition, size: 12, offset: 0},
			{semantic: semanticNormal, size: 12, offset: 12},
			{semantic: semanticTexcoord, size: 8, offset: 24},
			{semantic: semanticColor, size: 4, offset: 32},
			{semantic: semanticTangent, size: 4, offset: 36},
			{semantic: semanticBoneIndices, size: 4, offset: 40},
		},
	},
	TargetGTAV: {
		stride: 36,
		flags:  0x0001,
		fields: []vertexField{
			{semantic: semanticPosition, size: 12, offset: 0},
			{semantic: semanticNormal, size: 12, offset: 12},
			{semantic: semanticTexcoord, size: 8, offset: 24},
			{semantic: semanticColor, size: 4, offset: 32},
		},
	},
}
