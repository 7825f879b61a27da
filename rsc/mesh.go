// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

// Package rsc encodes transient mesh geometry into RAGE RSC7 resource
// streams: an 80-byte versioned header followed by a system segment
// holding the resource name and a graphics segment holding the packed
// vertex buffer, 16-bit index buffer and a shader-group record.
//
// Encoding is one-way. Streams produced here are meant to be stored in
// an archive under the target's model extension; decoding them back is
// out of scope.
package rsc

// Target selects the vertex declaration and header version of an
// encoded resource.
type Target string

// Supported encoding targets.
const (
	TargetRDR1 Target = "rdr1"
	TargetRDR2 Target = "rdr2"
	TargetGTAV Target = "gtav"
)

// Mesh is the transient geometry consumed by Encode. Positions define
// the vertex count; the other attribute slices may be shorter or nil,
// and vertices past their length fall back to fixed defaults. Faces
// hold vertex indices per polygon; polygons with more than three
// vertices are fan-triangulated and polygons with fewer are dropped.
//
// BoneWeights and BoneIndices feed skinned vertex layouts; targets
// whose declaration has no such field ignore them.
type Mesh struct {
	Name        string
	Positions   [][3]float32
	Normals     [][3]float32
	UVs         [][2]float32
	Colors      [][4]uint8
	BoneWeights [][4]float32
	BoneIndices [][4]uint8
	Faces       [][]int
}

// Profile carries per-target limits and asset conventions. Only the
// vertex ceiling is enforced by Encode; the rest describes the target
// for callers preparing geometry or choosing archive paths.
type Profile struct {
	// ScaleFactor converts world units to the target's native scale.
	ScaleFactor float32 `json:"scale_factor" yaml:"scale_factor"`
	// MaxVertices is the 16-bit index buffer ceiling.
	MaxVertices int `json:"max_vertices" yaml:"max_vertices"`
	// MaxMaterials is the per-drawable material limit.
	MaxMaterials int `json:"max_materials" yaml:"max_materials"`
	// YUp reports whether the target expects Y-up world coordinates.
	YUp bool `json:"y_up" yaml:"y_up"`
	// FlipUV reports the target's texture V-axis convention.
	FlipUV bool `json:"flip_uv" yaml:"flip_uv"`
	// ModelExt is the archive extension for encoded drawables.
	ModelExt string `json:"model_ext" yaml:"model_ext"`
	// TextureExt is the archive extension for texture dictionaries.
	TextureExt string `json:"texture_ext" yaml:"texture_ext"`
}

// profiles holds the per-target conventions; never mutated.
var profiles = map[Target]Profile{
	TargetRDR1: {
		ScaleFactor:  0.01,
		MaxVertices:  65535,
		MaxMaterials: 8,
		YUp:          true,
		FlipUV:       true,
		ModelExt:     ".wdr",
		TextureExt:   ".wtd",
	},
	TargetRDR2: {
		ScaleFactor:  0.01,
		MaxVertices:  65535,
		MaxMaterials: 16,
		YUp:          true,
		FlipUV:       true,
		ModelExt:     ".ydr",
		TextureExt:   ".ytd",
	},
	TargetGTAV: {
		ScaleFactor:  0.01,
		MaxVertices:  65535,
		MaxMaterials: 16,
		YUp:          false,
		FlipUV:       false,
		ModelExt:     ".ydr",
		TextureExt:   ".ytd",
	},
}

// ProfileFor returns the limits and conventions of one target.
func ProfileFor(target Target) (Profile, bool) {
	p, ok := profiles[target]
	return p, ok
}

// Targets lists the supported targets in a fixed order.
func Targets() []Target {
	return []Target{TargetRDR1, TargetRDR2, TargetGTAV}
}
