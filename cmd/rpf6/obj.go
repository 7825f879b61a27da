// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ragekit/rpf6/rsc"
)

// loadOBJ reads a minimal Wavefront OBJ subset: v, vn, vt and f records.
// OBJ keeps separate index spaces per attribute; normals and UVs are
// folded onto the position index of each face corner, last write wins.
func loadOBJ(path string) (*rsc.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var (
		mesh    rsc.Mesh
		normals [][3]float32
		uvs     [][2]float32
	)

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			p, err := parseFloats3(fields[1:])
			if err != nil {
				return nil, objError(path, lineNo, err)
			}
			mesh.Positions = append(mesh.Positions, p)
		case "vn":
			n, err := parseFloats3(fields[1:])
			if err != nil {
				return nil, objError(path, lineNo, err)
			}
			normals = append(normals, n)
		case "vt":
			if len(fields) < 3 {
				return nil, objError(path, lineNo, fmt.Errorf("expected 2 texture coordinates, got %d", len(fields)-1))
			}
			uv, err := parseFloats2(fields[1:3])
			if err != nil {
				return nil, objError(path, lineNo, err)
			}
			uvs = append(uvs, uv)
		case "f":
			if err := appendFace(&mesh, normals, uvs, fields[1:]); err != nil {
				return nil, objError(path, lineNo, err)
			}
		}
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return &mesh, nil
}

func objError(path string, line int, err error) error {
	return fmt.Errorf("%s:%d: %w", path, line, err)
}

func parseFloats3(fields []string) ([3]float32, error) {
	var out [3]float32
	if len(fields) < 3 {
		return out, fmt.Errorf("expected 3 coordinates, got %d", len(fields))
	}

	for i := 0; i < 3; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return out, fmt.Errorf("bad coordinate %q: %w", fields[i], err)
		}
		out[i] = float32(v)
	}

	return out, nil
}

func parseFloats2(fields []string) ([2]float32, error) {
	var out [2]float32
	for i := 0; i < 2; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return out, fmt.Errorf("bad coordinate %q: %w", fields[i], err)
		}
		out[i] = float32(v)
	}

	return out, nil
}

// appendFace parses face corners of the forms i, i/t, i/t/n and i//n
// and attaches referenced normals and UVs to the corner's vertex.
func appendFace(mesh *rsc.Mesh, normals [][3]float32, uvs [][2]float32, corners []string) error {
	face := make([]int, 0, len(corners))
	for _, corner := range corners {
		parts := strings.SplitN(corner, "/", 3)

		vi, err := resolveIndex(parts[0], len(mesh.Positions))
		if err != nil {
			return fmt.Errorf("vertex %q: %w", corner, err)
		}
		face = append(face, vi)

		if len(parts) > 1 && parts[1] != "" {
			ti, err := resolveIndex(parts[1], len(uvs))
			if err != nil {
				return fmt.Errorf("texture coordinate %q: %w", corner, err)
			}
			growUVs(mesh)[vi] = uvs[ti]
		}

		if len(parts) > 2 && parts[2] != "" {
			ni, err := resolveIndex(parts[2], len(normals))
			if err != nil {
				return fmt.Errorf("normal %q: %w", corner, err)
			}
			growNormals(mesh)[vi] = normals[ni]
		}
	}

	mesh.Faces = append(mesh.Faces, face)
	return nil
}

// resolveIndex converts a 1-based OBJ index, negative meaning relative
// to the end, into a 0-based slice index.
func resolveIndex(raw string, count int) (int, error) {
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad index %q: %w", raw, err)
	}

	switch {
	case idx > 0 && idx <= count:
		return idx - 1, nil
	case idx < 0 && -idx <= count:
		return count + idx, nil
	default:
		return 0, fmt.Errorf("index %d out of range (%d defined)", idx, count)
	}
}

func growUVs(mesh *rsc.Mesh) [][2]float32 {
	for len(mesh.UVs) < len(mesh.Positions) {
		mesh.UVs = append(mesh.UVs, [2]float32{})
	}

	return mesh.UVs
}

func growNormals(mesh *rsc.Mesh) [][3]float32 {
	for len(mesh.Normals) < len(mesh.Positions) {
		mesh.Normals = append(mesh.Normals, [3]float32{})
	}

	return mesh.Normals
}
