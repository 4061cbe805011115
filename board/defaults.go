// Board default seeding from a local boards.toml, grounded on
// newt's single-TOML/YAML-config-format habit: one decoder
// (github.com/BurntSushi/toml, already pulled in for TAB metadata)
// reused here so board defaults don't need a second config format.
package board

import (
	"os"

	"github.com/BurntSushi/toml"

	"github.com/tock/tockloader/errs"
)

// Defaults is one board's seed values, used when the attribute table
// read back from the device doesn't carry them yet (a freshly erased
// board, or one whose bootloader predates attribute support).
type Defaults struct {
	Arch      string `toml:"arch"`
	PageSize  uint32 `toml:"page_size"`
	AppsStart uint32 `toml:"apps_start_address"`
}

// DefaultsFile is the root of a boards.toml: one [boards.<name>] table
// per known board.
type DefaultsFile struct {
	Boards map[string]Defaults `toml:"boards"`
}

// LoadDefaults decodes a boards.toml at path. A missing file is not an
// error: callers fall back to their own built-in table.
func LoadDefaults(path string) (map[string]Defaults, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindUsage, err, "reading %s", path)
	}

	var f DefaultsFile
	if _, err := toml.Decode(string(raw), &f); err != nil {
		return nil, errs.Wrap(errs.KindUsage, err, "parsing %s", path)
	}
	return f.Boards, nil
}
