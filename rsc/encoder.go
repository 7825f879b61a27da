// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rsc

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	resourceMagic  = "RSC7"
	headerSize     = 80
	versionGTAV    = 0x34
	versionDefault = 0x3D
	systemAlign    = 16

	graphicsSubheaderSize = 12
	shaderRecordSize      = 84
	shaderGroupMarker     = 0x506C6179
	shaderName            = "DefaultShader"

	defaultResourceName = "unnamed"
)

// Encode serializes mesh geometry into a complete resource stream for
// the given target. The whole buffer is built in memory; no output is
// produced on validation failure.
//
// Coordinates are remapped (x, y, z) -> (x, z, -y) for positions and
// normals, and the texture V axis is flipped. All multi-byte fields in
// the stream are little-endian.
func Encode(mesh *Mesh, target Target) ([]byte, error) {
	decl, ok := declarations[target]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, target)
	}

	if mesh == nil || len(mesh.Positions) == 0 {
		return nil, ErrEmptyMesh
	}

	vertexCount := len(mesh.Positions)
	if limit := profiles[target].MaxVertices; vertexCount > limit {
		return nil, fmt.Errorf("%w: %d vertices, limit %d", ErrTooManyVertices, vertexCount, limit)
	}

	if err := validateFaces(mesh.Faces, vertexCount); err != nil {
		return nil, err
	}

	indices := triangulate(mesh.Faces)

	system := buildSystemSegment(mesh.Name)
	graphics := buildGraphicsSegment(mesh, decl, indices)
	header := buildHeader(target, len(system), len(graphics))

	out := make([]byte, 0, len(header)+len(system)+len(graphics))
	out = append(out, header...)
	out = append(out, system...)
	out = append(out, graphics...)

	return out, nil
}

// validateFaces checks every index of every face, including faces too
// short to produce a triangle.
func validateFaces(faces [][]int, vertexCount int) error {
	for fi, face := range faces {
		for _, idx := range face {
			if idx < 0 || idx >= vertexCount {
				return fmt.Errorf("%w: face %d references vertex %d of %d", ErrFaceIndex, fi, idx, vertexCount)
			}
		}
	}

	return nil
}

// triangulate fans every polygon around its first vertex: a face
// [v0..vk] emits (v0, vi, vi+1). Quads become exactly two triangles;
// faces with fewer than three vertices are dropped.
func triangulate(faces [][]int) []uint16 {
	var indices []uint16
	for _, face := range faces {
		for i := 1; i+1 < len(face); i++ {
			indices = append(indices, uint16(face[0]), uint16(face[i]), uint16(face[i+1]))
		}
	}

	return indices
}

// buildHeader packs the fixed 80-byte resource header. The system
// segment always starts right after the header.
func buildHeader(target Target, systemSize, graphicsSize int) []byte {
	version := uint32(versionDefault)
	if target == TargetGTAV {
		version = versionGTAV
	}

	h := make([]byte, headerSize)
	copy(h, resourceMagic)
	binary.LittleEndian.PutUint32(h[4:8], version)
	binary.LittleEndian.PutUint32(h[8:12], headerSize)
	binary.LittleEndian.PutUint64(h[12:20], uint64(systemSize))
	binary.LittleEndian.PutUint64(h[20:28], uint64(graphicsSize))
	binary.LittleEndian.PutUint64(h[28:36], headerSize)
	binary.LittleEndian.PutUint64(h[36:44], uint64(headerSize+systemSize))

	return h
}

// buildSystemSegment packs the resource name, NUL-terminated and
// zero-padded to a 16-byte multiple.
func buildSystemSegment(name string) []byte {
	if name == "" {
		name = defaultResourceName
	}

	used := len(name) + 1
	padded := (used + systemAlign - 1) / systemAlign * systemAlign
	seg := make([]byte, padded)
	copy(seg, name)

	return seg
}

// buildGraphicsSegment packs the subheader, vertex buffer, index buffer
// and shader-group record back to back.
func buildGraphicsSegment(mesh *Mesh, decl declaration, indices []uint16) []byte {
	vertexCount := len(mesh.Positions)
	size := graphicsSubheaderSize + vertexCount*decl.stride + 2*len(indices) + shaderRecordSize
	seg := make([]byte, 0, size)

	var sub [graphicsSubheaderSize]byte
	binary.LittleEndian.PutUint32(sub[0:4], uint32(vertexCount))
	binary.LittleEndian.PutUint32(sub[4:8], uint32(len(indices)/3))
	binary.LittleEndian.PutUint32(sub[8:12], decl.flags)
	seg = append(seg, sub[:]...)

	record := make([]byte, decl.stride)
	for i := range vertexCount {
		packVertex(record, mesh, i, decl)
		seg = append(seg, record...)
	}

	var idx [2]byte
	for _, v := range indices {
		binary.LittleEndian.PutUint16(idx[:], v)
		seg = append(seg, idx[:]...)
	}

	return append(seg, shaderRecord()...)
}

// packVertex writes one vertex record. Fields whose slot does not fit
// the declared stride are skipped; untouched bytes stay zero.
func packVertex(record []byte, mesh *Mesh, i int, decl declaration) {
	clear(record)

	for _, f := range decl.fields {
		if f.offset+f.size > decl.stride {
			continue
		}

		b := record[f.offset : f.offset+f.size]
		switch f.semantic {
		case semanticPosition:
			p := mesh.Positions[i]
			putFloat32(b, 0, p[0])
			putFloat32(b, 4, p[2])
			putFloat32(b, 8, -p[1])
		case semanticNormal:
			if i < len(mesh.Normals) {
				n := mesh.Normals[i]
				putFloat32(b, 0, n[0])
				putFloat32(b, 4, n[2])
				putFloat32(b, 8, -n[1])
			} else {
				putFloat32(b, 4, 1)
			}
		case semanticTexcoord:
			var uv [2]float32
			if i < len(mesh.UVs) {
				uv = mesh.UVs[i]
			}
			putFloat32(b, 0, uv[0])
			putFloat32(b, 4, 1-uv[1])
		case semanticColor:
			c := [4]uint8{255, 255, 255, 255}
			if i < len(mesh.Colors) {
				c = mesh.Colors[i]
			}
			copy(b, c[:])
		case semanticBoneWeights:
			w := [4]float32{1, 0, 0, 0}
			if i < len(mesh.BoneWeights) {
				w = mesh.BoneWeights[i]
			}
			putFloat32(b, 0, w[0])
			putFloat32(b, 4, w[1])
			putFloat32(b, 8, w[2])
			putFloat32(b, 12, w[3])
		case semanticBoneIndices:
			var bone [4]uint8
			if i < len(mesh.BoneIndices) {
				bone = mesh.BoneIndices[i]
			}
			copy(b, bone[:])
		case semanticTangent:
			// No source attribute; the slot stays zero.
		}
	}
}

// shaderRecord returns the fixed 84-byte placeholder shader group: one
// default shader entry and no parameters.
func shaderRecord() []byte {
	rec := make([]byte, shaderRecordSize)
	binary.LittleEndian.PutUint32(rec[0:4], 1)
	binary.LittleEndian.PutUint32(rec[12:16], shaderGroupMarker)
	copy(rec[20:], shaderName)

	return rec
}

// putFloat32 stores a little-endian IEEE 754 value at off.
func putFloat32(b []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(b[off:off+4], math.Float32bits(v))
}
