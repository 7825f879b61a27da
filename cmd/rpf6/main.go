// SPDX-License-Identifier: MIT
// Copyright (c) 2026 ragekit
// Source: github.com/ragekit/rpf6

// Command rpf6 inspects, extracts, builds and patches RPF6 archives and
// encodes mesh resources for storage in them.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"github.com/woozymasta/pathrules"

	"github.com/ragekit/rpf6"
	"github.com/ragekit/rpf6/rsc"
)

var version = "dev"

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	app := &cli.App{
		Name:    "rpf6",
		Usage:   "RPF6 archive and resource tool",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "Set log level (panic, fatal, error, warn, info, debug, trace)", EnvVars: []string{"LOG_LEVEL"}},
		},
		Before: func(c *cli.Context) error {
			level, err := logrus.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logrus.SetLevel(level)
			return nil
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:      "info",
			Usage:     "Show archive header and content summary",
			ArgsUsage: "ARCHIVE",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "digests", Usage: "Compute a BLAKE3 digest per file entry", EnvVars: []string{"RPF6_DIGESTS"}},
			},
			Action: runInfo,
		},
		{
			Name:      "list",
			Usage:     "List archive entries",
			ArgsUsage: "ARCHIVE",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "json", Usage: "Emit entries as JSON"},
			},
			Action: runList,
		},
		{
			Name:      "extract",
			Usage:     "Extract archive entries into a directory",
			ArgsUsage: "ARCHIVE DIR",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "workers", Usage: "Parallel extraction workers, 0 selects GOMAXPROCS", EnvVars: []string{"RPF6_WORKERS"}},
				&cli.StringSliceFlag{Name: "entry", Usage: "Extract only the named entries (repeatable)"},
			},
			Action: runExtract,
		},
		{
			Name:      "create",
			Usage:     "Build an archive from a directory tree",
			ArgsUsage: "ARCHIVE DIR",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "level", Usage: "DEFLATE level for compressed entries (0 selects the default)", EnvVars: []string{"RPF6_LEVEL"}},
				&cli.StringSliceFlag{Name: "compress", Usage: "Compress paths matching this pattern (repeatable, default policy when omitted)"},
			},
			Action: runCreate,
		},
		{
			Name:      "patch",
			Usage:     "Modify an existing archive in place or into a new file",
			ArgsUsage: "ARCHIVE",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{Name: "replace", Usage: "Replace entry payload, NAME=FILE (repeatable)"},
				&cli.StringSliceFlag{Name: "add", Usage: "Add a new entry, NAME=FILE (repeatable)"},
				&cli.StringSliceFlag{Name: "remove", Usage: "Remove an entry by name (repeatable)"},
				&cli.StringFlag{Name: "out", Usage: "Output path, defaults to the source archive"},
				&cli.IntFlag{Name: "level", Usage: "DEFLATE level for replaced payloads (0 selects the default)", EnvVars: []string{"RPF6_LEVEL"}},
			},
			Action: runPatch,
		},
		{
			Name:      "mesh",
			Usage:     "Encode a Wavefront OBJ mesh into an RSC7 resource stream",
			ArgsUsage: "OBJ OUT",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "target", Value: string(rsc.TargetRDR1), Usage: "Encoding target (rdr1, rdr2, gtav)", EnvVars: []string{"RPF6_TARGET"}},
				&cli.StringFlag{Name: "name", Usage: "Resource name, defaults to the OBJ file name"},
			},
			Action: runMesh,
		},
		{
			Name:      "detect",
			Usage:     "Report the detected format of a file",
			ArgsUsage: "FILE",
			Action:    runDetect,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

func runInfo(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s ARCHIVE", c.Command.Name)
	}

	r, err := rpf6.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	info := r.Info()
	fmt.Printf("entries:      %d\n", info.EntryCount)
	fmt.Printf("files:        %d\n", info.FileCount)
	fmt.Printf("directories:  %d\n", info.DirectoryCount)
	fmt.Printf("compressed:   %d\n", info.CompressedCount)
	fmt.Printf("name table:   %d bytes\n", info.NamesLength)
	fmt.Printf("stored:       %d bytes\n", info.StoredBytes)
	fmt.Printf("uncompressed: %d bytes\n", info.UncompressedBytes)
	fmt.Printf("special flag: 0x%08X\n", info.SpecialFlag)

	if !c.Bool("digests") {
		return nil
	}

	fmt.Println()
	for _, e := range r.Entries() {
		if e.Directory {
			continue
		}

		sum, err := r.Digest(e.Name)
		if err != nil {
			return fmt.Errorf("digest %s: %w", e.Name, err)
		}

		fmt.Printf("%s  %s\n", hex.EncodeToString(sum[:]), e.Name)
	}

	return nil
}

func runList(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s ARCHIVE", c.Command.Name)
	}

	r, err := rpf6.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	entries := r.Entries()
	if c.Bool("json") {
		out, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}

		fmt.Println(string(out))
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%s %10d %10d  %s\n", entryFlagsColumn(e), e.DataSize, e.UncompressedSize, e.Name)
	}

	return nil
}

// entryFlagsColumn renders the fixed-width flags column: directory,
// compressed, and the resource tag when present.
func entryFlagsColumn(e rpf6.EntryInfo) string {
	flags := []byte{'-', '-'}
	if e.Directory {
		flags[0] = 'd'
	}
	if e.Compressed {
		flags[1] = 'c'
	}

	if e.ResourceType != 0 {
		return fmt.Sprintf("%s %02X", flags, e.ResourceType)
	}

	return fmt.Sprintf("%s --", flags)
}

func runExtract(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: %s ARCHIVE DIR", c.Command.Name)
	}

	r, err := rpf6.Open(c.Args().Get(0))
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	res, err := r.Extract(context.Background(), c.Args().Get(1), rpf6.ExtractOptions{
		MaxWorkers: c.Int("workers"),
		Entries:    c.StringSlice("entry"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("extracted %d files, %d directories, %d failed\n", res.Extracted, res.Directories, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d entries failed to extract", res.Failed)
	}

	return nil
}

func runCreate(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: %s ARCHIVE DIR", c.Command.Name)
	}

	policy, err := buildPolicy(c.StringSlice("compress"))
	if err != nil {
		return err
	}

	w := rpf6.NewWriter()
	if err := w.AddTree(c.Args().Get(1), "", policy, c.Int("level")); err != nil {
		return err
	}

	res, err := w.WriteArchive(c.Args().Get(0), rpf6.WriteOptions{
		OnProgress: func(percent int, phase string) {
			logrus.Debugf("write %3d%% %s", percent, phase)
		},
	})
	if err != nil {
		return err
	}

	fmt.Printf("wrote %d entries (%d compressed), %d bytes in %s\n",
		res.Entries, res.CompressedEntries, res.TotalBytes, res.Duration)

	return nil
}

// buildPolicy turns --compress patterns into a policy, falling back to
// the default extension policy when none are given.
func buildPolicy(patterns []string) (*rpf6.CompressPolicy, error) {
	if len(patterns) == 0 {
		return rpf6.DefaultCompressPolicy(), nil
	}

	rules := make([]pathrules.Rule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, pathrules.Rule{Action: pathrules.ActionInclude, Pattern: p})
	}

	return rpf6.NewCompressPolicy(rules, pathrules.MatcherOptions{})
}

func runPatch(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s ARCHIVE", c.Command.Name)
	}

	archive := c.Args().Get(0)
	p, err := rpf6.OpenPatcher(archive, rpf6.PatcherOptions{Level: c.Int("level")})
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	for _, arg := range c.StringSlice("replace") {
		name, file, err := splitAssignment(arg)
		if err != nil {
			return err
		}

		if err := p.ReplaceFile(file, name); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
	}

	policy := rpf6.DefaultCompressPolicy()
	for _, arg := range c.StringSlice("add") {
		name, file, err := splitAssignment(arg)
		if err != nil {
			return err
		}

		opts := rpf6.AddOptions{Compress: policy.ShouldCompress(name), Level: c.Int("level")}
		if err := p.AddFile(file, name, opts); err != nil {
			return fmt.Errorf("add %s: %w", name, err)
		}
	}

	for _, name := range c.StringSlice("remove") {
		if !p.Remove(name) {
			logrus.Warnf("no entry %q to remove", name)
		}
	}

	summary := p.Summary()
	printSummary(summary)

	out := c.String("out")
	if out == "" {
		out = archive
	}

	res, err := p.WriteArchive(out, rpf6.WriteOptions{})
	if err != nil {
		return err
	}

	fmt.Printf("wrote %d entries, %d bytes in %s\n", res.Entries, res.TotalBytes, res.Duration)

	return nil
}

func printSummary(s rpf6.ModificationSummary) {
	fmt.Printf("entries: %d -> %d\n", s.OriginalEntries, s.CurrentEntries)
	for _, name := range s.Added {
		fmt.Printf("  A %s\n", name)
	}
	for _, name := range s.Modified {
		fmt.Printf("  M %s\n", name)
	}
	for _, name := range s.Removed {
		fmt.Printf("  R %s\n", name)
	}
}

// splitAssignment parses a NAME=FILE argument.
func splitAssignment(arg string) (name, file string, err error) {
	name, file, ok := strings.Cut(arg, "=")
	if !ok || name == "" || file == "" {
		return "", "", fmt.Errorf("invalid argument %q, expected NAME=FILE", arg)
	}

	return name, file, nil
}

func runMesh(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: %s OBJ OUT", c.Command.Name)
	}

	objPath := c.Args().Get(0)
	mesh, err := loadOBJ(objPath)
	if err != nil {
		return err
	}

	mesh.Name = c.String("name")
	if mesh.Name == "" {
		mesh.Name = strings.TrimSuffix(filepath.Base(objPath), filepath.Ext(objPath))
	}

	stream, err := rsc.Encode(mesh, rsc.Target(c.String("target")))
	if err != nil {
		return err
	}

	outPath := c.Args().Get(1)
	if err := os.WriteFile(outPath, stream, 0o600); err != nil {
		return fmt.Errorf("write resource: %w", err)
	}

	fmt.Printf("encoded %d vertices, %d faces -> %s (%d bytes)\n",
		len(mesh.Positions), len(mesh.Faces), outPath, len(stream))

	return nil
}

func runDetect(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: %s FILE", c.Command.Name)
	}

	name := c.Args().Get(0)
	f, err := os.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	st, err := f.Stat()
	if err != nil {
		return err
	}

	prefix := make([]byte, 128)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return err
	}
	prefix = prefix[:n]

	fmt.Printf("file:      %s\n", name)
	fmt.Printf("size:      %d\n", st.Size())
	fmt.Printf("format:    %s\n", rpf6.DetectFormat(prefix))
	if info, ok := rpf6.DescribeExtension(name); ok {
		fmt.Printf("extension: %s (resource type 0x%02X)\n", info.Description, info.ResourceType)
	}

	return nil
}
