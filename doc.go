// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

/*
Package rpf6 provides read, extract, write, and patch operations for
RPF6 game archives. Payloads are page-aligned on 2048-byte boundaries
and optionally DEFLATE-compressed per entry; all header and table
fields are big-endian.

# Reading

Open an archive and list or read entries:

	r, err := rpf6.Open("game.rpf")
	if err != nil {
	    return err
	}
	defer r.Close()
	for _, e := range r.Entries() {
	    if e.Directory {
	        continue
	    }
	    data, _ := r.ReadFile(e.Name)
	    // use data
	}

Compressed entries are inflated transparently. A damaged DEFLATE stream
degrades to the raw stored bytes with a logged warning instead of
failing, so one corrupt entry never blocks the rest of an archive.

# Extracting

Extract all entries to a directory (parallel workers):

	res, err := r.Extract(ctx, "out/", rpf6.ExtractOptions{MaxWorkers: 4})
	if err != nil {
	    return err
	}
	_ = res.Extracted

Failures are per-entry: a bad entry is counted and reported through
OnEntryDone while the remaining entries still extract.

# Writing

Stage entries and serialize a new archive; compression is decided per
entry, either explicitly or by a policy:

	w := rpf6.NewWriter()
	if err := w.AddData("textures/a.dds", data, rpf6.AddOptions{}); err != nil {
	    return err
	}
	if err := w.AddData("models/b.wdr", model, rpf6.AddOptions{Compress: true}); err != nil {
	    return err
	}
	res, err := w.WriteArchive("out.rpf", rpf6.WriteOptions{
	    OnProgress: func(percent int, phase string) {
	        // progress callback per serialization phase
	    },
	})

Whole directory trees pack with a compression policy built from
github.com/woozymasta/pathrules patterns:

	policy, err := rpf6.NewCompressPolicy([]pathrules.Rule{
	    {Action: pathrules.ActionInclude, Pattern: "*.wdr"},
	    {Action: pathrules.ActionInclude, Pattern: "textures/**"},
	}, pathrules.MatcherOptions{})
	if err != nil {
	    return err
	}
	if err := w.AddTree("assets/", "", policy, 0); err != nil {
	    return err
	}

Output goes through a temp file renamed into place on success, so a
failed write never corrupts an existing archive.

# Patching

Modify an existing archive without touching unchanged payloads; their
stored bytes are streamed from the source as-is:

	p, err := rpf6.OpenPatcher("game.rpf", rpf6.PatcherOptions{})
	if err != nil {
	    return err
	}
	defer p.Close()
	if err := p.ReplaceData("scripts/main.lua", patched); err != nil {
	    return err
	}
	summary := p.Summary()
	_, err = p.WriteArchive("game.rpf", rpf6.WriteOptions{})
	_ = summary.Modified

# Mesh resources

Encode mesh geometry into an RSC7 resource stream and store it:

	stream, err := rsc.Encode(&rsc.Mesh{
	    Name:      "crate",
	    Positions: positions,
	    Faces:     faces,
	}, rsc.TargetRDR1)
	if err != nil {
	    return err
	}
	err = w.AddData("models/crate.wdr", stream, rpf6.AddOptions{Compress: true})
*/
package rpf6
