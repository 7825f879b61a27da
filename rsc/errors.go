// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rsc

import "errors"

var (
	// ErrUnknownTarget reports a target with no registered declaration.
	ErrUnknownTarget = errors.New("unknown encoding target")
	// ErrEmptyMesh reports a mesh with no vertices.
	ErrEmptyMesh = errors.New("mesh has no vertices")
	// ErrTooManyVertices reports a mesh past the 16-bit index ceiling.
	ErrTooManyVertices = errors.New("vertex count exceeds index buffer limit")
	// ErrFaceIndex reports a face referencing a vertex that does not exist.
	ErrFaceIndex = errors.New("face index out of range")
)
