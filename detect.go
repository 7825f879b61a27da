// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

package rpf6

import (
	"bytes"
	"path"
	"strings"
)

// Resource tags carried in the low six bits of entry flags. Zero marks a
// plain file with no resource semantics.
const (
	ResourceNone         uint8 = 0x00
	ResourceDrawable     uint8 = 0x01
	ResourceDrawableDict uint8 = 0x02
	ResourceTextureDict  uint8 = 0x03
	ResourceBounds       uint8 = 0x04
	ResourceBoundsDict   uint8 = 0x05
	ResourceFragment     uint8 = 0x06
	ResourceVisualData   uint8 = 0x07
	ResourceTexture      uint8 = 0x08
	ResourceMapData      uint8 = 0x10
	ResourceArchetypes   uint8 = 0x11
)

// ExtensionInfo describes the known role of a file extension inside an
// archive: a human-readable description and the resource tag the writer
// stores in the entry flags.
type ExtensionInfo struct {
	Description  string `json:"description" yaml:"description"`
	ResourceType uint8  `json:"resource_type" yaml:"resource_type"`
}

// knownExtensions maps lower-case extensions to their archive role.
var knownExtensions = map[string]ExtensionInfo{
	".wdr":  {Description: "drawable model", ResourceType: ResourceDrawable},
	".wdd":  {Description: "drawable dictionary", ResourceType: ResourceDrawableDict},
	".wtd":  {Description: "texture dictionary", ResourceType: ResourceTextureDict},
	".wbn":  {Description: "collision bounds", ResourceType: ResourceBounds},
	".wbd":  {Description: "collision bounds dictionary", ResourceType: ResourceBoundsDict},
	".wft":  {Description: "fragment model", ResourceType: ResourceFragment},
	".wvd":  {Description: "terrain visual data", ResourceType: ResourceVisualData},
	".ydr":  {Description: "drawable model", ResourceType: ResourceDrawable},
	".ydd":  {Description: "drawable dictionary", ResourceType: ResourceDrawableDict},
	".ytd":  {Description: "texture dictionary", ResourceType: ResourceTextureDict},
	".ybn":  {Description: "collision bounds", ResourceType: ResourceBounds},
	".yft":  {Description: "fragment model", ResourceType: ResourceFragment},
	".ymap": {Description: "map placement data", ResourceType: ResourceMapData},
	".ytyp": {Description: "archetype definitions", ResourceType: ResourceArchetypes},
	".dds":  {Description: "DirectDraw surface texture", ResourceType: ResourceTexture},
}

// formatSignature binds one magic prefix to a format name.
type formatSignature struct {
	magic []byte
	name  string
}

// formatSignatures is scanned in order: specific four-byte magics come
// first so the three-byte legacy prefixes cannot shadow them.
var formatSignatures = []formatSignature{
	{magic: []byte("RPF6"), name: "RPF6 archive"},
	{magic: []byte("RSC7"), name: "RAGE resource v7"},
	{magic: []byte("RSC8"), name: "RAGE resource v8"},
	{magic: []byte("RSC5"), name: "RAGE resource v5"},
	{magic: []byte("DDS "), name: "DirectDraw surface"},
	{magic: []byte("<?xml"), name: "XML document"},
	{magic: []byte("VERT"), name: "vertex stream"},
	{magic: []byte("INDX"), name: "index stream"},
	{magic: []byte("FORM"), name: "IFF container"},
	{magic: []byte("RSC"), name: "RAGE resource"},
	{magic: []byte("RDR"), name: "RDR model"},
	{magic: []byte("RGE"), name: "RAGE container"},
	{magic: []byte("WDR"), name: "drawable model"},
	{magic: []byte("WDD"), name: "drawable dictionary"},
	{magic: []byte("IMG"), name: "IMG archive"},
}

// DetectFormat names the format of a payload by its leading bytes.
// Unrecognized data reports "unknown".
func DetectFormat(prefix []byte) string {
	for i := range formatSignatures {
		if bytes.HasPrefix(prefix, formatSignatures[i].magic) {
			return formatSignatures[i].name
		}
	}

	return "unknown"
}

// DescribeExtension reports the known archive role of a path by its
// extension, case-insensitively.
func DescribeExtension(name string) (ExtensionInfo, bool) {
	info, ok := knownExtensions[strings.ToLower(path.Ext(NormalizePath(name)))]
	return info, ok
}

// resourceTypeForPath derives the stored resource tag from a path
// extension; unknown extensions carry no tag.
func resourceTypeForPath(name string) uint8 {
	if info, ok := DescribeExtension(name); ok {
		return info.ResourceType
	}

	return ResourceNone
}
