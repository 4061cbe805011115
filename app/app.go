// Package app models the two app object variants the layout engine
// operates over: InstalledApp (discovered by walking flash) and TabApp
// (loaded from a TAB file, possibly carrying several fixed-address
// variants). Both wrap a tbf.Header, following apache-mynewt-newt's
// artifact/image.Image: a parsed header paired with the raw binary it
// describes, plus enough bookkeeping (name, size, modified) for the
// tool that holds it to decide whether it needs to be re-emitted.
package app

import (
	"fmt"

	"github.com/tock/tockloader/tbf"
)

// App is satisfied by every object the layout engine places:
// InstalledApp, a selected TabApp variant, and PaddingApp.
type App interface {
	// Header returns the TBF header describing this app.
	Header() *tbf.Header
	// Name returns the app's PackageName, or a synthesized app_<addr>
	// if it carries none and addr is known.
	Name() string
	// Size returns total_length: the full on-flash footprint including
	// header, binary, and any footer.
	Size() uint32
	// Binary returns the raw app bytes (header+binary+footer) if
	// loaded, or nil if only the header has been read so far.
	Binary() []byte
	// IsPadding reports whether this is a PaddingApp.
	IsPadding() bool
}

// InstalledApp is an app discovered by walking flash starting at
// apps_start_address. Address is its current location; Binary may be
// nil if only the header was read (the layout engine reads the full
// binary only for apps that might need to move).
type InstalledApp struct {
	Addr     uint32
	Hdr      *tbf.Header
	Bin      []byte // may be nil
	Modified bool
	Sticky   bool

	// nameOverride is set when Hdr carries no PackageName TLV, so Name
	// can synthesize app_<addr> without mutating the header.
	nameOverride string
}

var _ App = (*InstalledApp)(nil)

func NewInstalledApp(addr uint32, hdr *tbf.Header, bin []byte) *InstalledApp {
	a := &InstalledApp{Addr: addr, Hdr: hdr, Bin: bin, Sticky: hdr.Sticky()}
	if hdr.Name() == "" {
		a.nameOverride = fmt.Sprintf("app_%08x", addr)
	}
	return a
}

func (a *InstalledApp) Header() *tbf.Header { return a.Hdr }

func (a *InstalledApp) Name() string {
	if a.nameOverride != "" {
		return a.nameOverride
	}
	return a.Hdr.Name()
}

func (a *InstalledApp) Size() uint32 { return a.Hdr.Base.TotalLength }
func (a *InstalledApp) Binary() []byte { return a.Bin }
func (a *InstalledApp) IsPadding() bool { return a.Hdr.IsPadding() }

// SetBinary loads (or replaces) the raw bytes for an installed app,
// needed before the layout engine can move it to a new address.
func (a *InstalledApp) SetBinary(bin []byte) {
	a.Bin = bin
	a.Modified = true
}

// SetMinimumSize pads total_length up to n, used by the placement
// algorithm when MPU alignment requires more room than the app's
// natural size.
func (a *InstalledApp) SetMinimumSize(n uint32) {
	if a.Hdr.Base.TotalLength < n {
		a.Hdr.SetAppSize(n)
		a.Modified = true
	}
}

// TabVariant is one architecture/address-specific TBF within a TAB.
type TabVariant struct {
	Arch   string
	Hdr    *tbf.Header
	Bin    []byte
	Suffix string // non-empty for multiple fixed-address variants of the same arch
}

// TabApp is parsed from a TAB file's metadata.toml plus its member
// <arch>[.<suffix>].tbf files. It may carry several Variants when the
// TAB was built with multiple fixed-address layouts; Select narrows
// down to the one variant the placement algorithm will actually use.
type TabApp struct {
	PkgName  string
	Variants []TabVariant

	// selected, once non-nil, is the variant the layout engine decided
	// to install.
	selected *TabVariant
}

var _ App = (*TabApp)(nil)

// VariantsForArch returns every variant matching arch.
func (t *TabApp) VariantsForArch(arch string) []TabVariant {
	var out []TabVariant
	for _, v := range t.Variants {
		if v.Arch == arch {
			out = append(out, v)
		}
	}
	return out
}

// Select fixes which variant the layout engine will install. Called
// once placement has picked a fixed-address candidate (or the sole
// non-fixed variant for arch).
func (t *TabApp) Select(v *TabVariant) {
	t.selected = v
}

// Candidates returns every Variants entry's header, in order. Placement
// uses this to try each fixed-address build in turn before committing
// to one via SelectCandidate, per the deferred-selection algorithm for
// TABs with multiple fixed-address variants.
func (t *TabApp) Candidates() []*tbf.Header {
	out := make([]*tbf.Header, len(t.Variants))
	for i := range t.Variants {
		out[i] = t.Variants[i].Hdr
	}
	return out
}

// SelectCandidate commits to Variants[i] as the variant to install,
// equivalent to Select(&t.Variants[i]).
func (t *TabApp) SelectCandidate(i int) {
	t.selected = &t.Variants[i]
}

func (t *TabApp) Header() *tbf.Header {
	if t.selected == nil {
		return nil
	}
	return t.selected.Hdr
}

func (t *TabApp) Name() string {
	if t.PkgName != "" {
		return t.PkgName
	}
	if t.selected != nil {
		return t.selected.Hdr.Name()
	}
	return ""
}

func (t *TabApp) Size() uint32 {
	if t.selected == nil {
		return 0
	}
	return t.selected.Hdr.Base.TotalLength
}

// SetMinimumSize pads the selected variant's total_length up to n.
func (t *TabApp) SetMinimumSize(n uint32) {
	if t.selected != nil && t.selected.Hdr.Base.TotalLength < n {
		t.selected.Hdr.SetAppSize(n)
	}
}

func (t *TabApp) Binary() []byte {
	if t.selected == nil {
		return nil
	}
	return t.selected.Bin
}

func (t *TabApp) IsPadding() bool { return false }

// PaddingApp reserves space between real apps on flash: a TBF header
// with total_length set to the gap size and no Main/Program TLV.
type PaddingApp struct {
	Addr uint32
	Hdr  *tbf.Header
}

var _ App = (*PaddingApp)(nil)

// NewPaddingApp builds a padding TBF of exactly size bytes at addr.
// size must be at least tbf.MinHeaderSize.
func NewPaddingApp(addr uint32, size uint32) *PaddingApp {
	hdr := &tbf.Header{Base: tbf.HeaderBase{
		Version:      tbf.Version,
		HeaderLength: tbf.HeaderBaseSize,
		TotalLength:  size,
	}}
	return &PaddingApp{Addr: addr, Hdr: hdr}
}

func (p *PaddingApp) Header() *tbf.Header { return p.Hdr }
func (p *PaddingApp) Name() string        { return fmt.Sprintf("padding_%08x", p.Addr) }
func (p *PaddingApp) Size() uint32        { return p.Hdr.Base.TotalLength }
func (p *PaddingApp) IsPadding() bool     { return true }

func (p *PaddingApp) Binary() []byte {
	out, err := p.Hdr.Encode()
	if err != nil {
		return nil
	}
	if pad := int(p.Hdr.Base.TotalLength) - len(out); pad > 0 {
		out = append(out, make([]byte, pad)...)
	}
	return out
}
