// Package tab reads Tock Application Bundles: uncompressed tar
// archives carrying one metadata.toml and one or more per-architecture
// TBF binaries. Grounded on apache-mynewt-newt's artifact/image
// package, which reads a signed image off disk into an in-memory
// Image the rest of the tool operates on; this generalizes that
// "parse an on-disk artifact into the domain's app object" shape to a
// tar container instead of a single file, folding every member TBF
// into one app.TabApp's Variants.
package tab

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tock/tockloader/app"
	"github.com/tock/tockloader/errs"
	"github.com/tock/tockloader/tbf"
)

// TAB is a parsed Tock Application Bundle.
type TAB struct {
	Metadata Metadata
	App      *app.TabApp
}

// Open reads path as an uncompressed tar archive (archive/tar; the TAB
// format carries no compression layer) and parses its metadata.toml
// plus every <arch>[.<suffix>].tbf member into App.Variants.
func Open(path string) (*TAB, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindUsage, err, "opening TAB file %s", path)
	}
	defer f.Close()

	tr := tar.NewReader(f)

	var md Metadata
	haveMetadata := false
	var variants []app.TabVariant

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errs.Wrap(errs.KindUsage, err, "reading TAB file %s", path)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := trimDir(hdr.Name)
		switch {
		case name == "metadata.toml":
			raw, err := io.ReadAll(tr)
			if err != nil {
				return nil, errs.Wrap(errs.KindUsage, err, "reading metadata.toml in %s", path)
			}
			if _, err := toml.Decode(string(raw), &md); err != nil {
				return nil, errs.Wrap(errs.KindUsage, err, "decoding metadata.toml in %s", path)
			}
			haveMetadata = true

		case strings.HasSuffix(name, ".tbf"):
			arch, suffix, ok := parseMemberName(name)
			if !ok {
				continue
			}
			raw, err := io.ReadAll(tr)
			if err != nil {
				return nil, errs.Wrap(errs.KindUsage, err, "reading %s in %s", name, path)
			}
			variant, err := parseVariant(arch, suffix, raw)
			if err != nil {
				return nil, errs.Wrap(errs.KindInvalidHeader, err, "parsing %s in %s", name, path)
			}
			variants = append(variants, variant)
		}
	}

	if !haveMetadata {
		return nil, errs.Newf(errs.KindUsage, "TAB file %s has no metadata.toml", path)
	}
	if len(variants) == 0 {
		return nil, errs.Newf(errs.KindUsage, "TAB file %s has no TBF members", path)
	}

	return &TAB{
		Metadata: md,
		App:      &app.TabApp{PkgName: md.Name, Variants: variants},
	}, nil
}

// trimDir strips any leading directory components a tar entry carries,
// since some TAB producers wrap members in a top-level folder.
func trimDir(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// parseMemberName splits "<arch>.tbf" or "<arch>.<suffix>.tbf" into its
// arch and optional suffix.
func parseMemberName(name string) (arch, suffix string, ok bool) {
	base := strings.TrimSuffix(name, ".tbf")
	if base == name {
		return "", "", false
	}
	parts := strings.SplitN(base, ".", 2)
	if parts[0] == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		return parts[0], parts[1], true
	}
	return parts[0], "", true
}

func parseVariant(arch, suffix string, raw []byte) (app.TabVariant, error) {
	hdr, _, err := tbf.ParseHeader(raw, 0)
	if err != nil {
		return app.TabVariant{}, err
	}
	if hdr == nil {
		return app.TabVariant{}, fmt.Errorf("empty or erased TBF header")
	}
	return app.TabVariant{Arch: arch, Hdr: hdr, Bin: raw, Suffix: suffix}, nil
}
