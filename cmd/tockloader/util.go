package main

import (
	"strconv"
	"strings"

	"github.com/tock/tockloader/errs"
)

// parseUintArg parses a decimal or 0x-prefixed hexadecimal address
// argument, the form every subcommand's positional address arguments
// accept.
func parseUintArg(s string) (uint32, error) {
	base := 10
	trimmed := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		trimmed = s[2:]
	}
	v, err := strconv.ParseUint(trimmed, base, 32)
	if err != nil {
		return 0, errs.Wrap(errs.KindUsage, err, "parsing address %q", s)
	}
	return uint32(v), nil
}
