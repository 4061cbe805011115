package tab

// Metadata is the decoded contents of a TAB's metadata.toml, per the
// TAB file format's documented key set.
type Metadata struct {
	TabVersion               int      `toml:"tab-version"`
	Name                     string   `toml:"name"`
	KernelVersion            string   `toml:"kernel-version"`
	OnlyForBoards            []string `toml:"only-for-boards"`
	BuildDate                string   `toml:"build-date"`
	MinimumTockKernelVersion string   `toml:"minimum-tock-kernel-version"`
}

// SupportsBoard reports whether board may install this TAB: true when
// OnlyForBoards is empty (no restriction) or lists board.
func (md Metadata) SupportsBoard(board string) bool {
	if len(md.OnlyForBoards) == 0 {
		return true
	}
	for _, b := range md.OnlyForBoards {
		if b == board {
			return true
		}
	}
	return false
}
