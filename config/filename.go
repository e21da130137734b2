package config

import (
	"os"
	"strings"
)

// CleanFileName strips characters the current platform does not allow in
// file names. Result is never empty.
func CleanFileName(in string) string {
	forbidden := invalidNameRunes + string(os.PathSeparator) + string(os.PathListSeparator)
	out := strings.Map(func(sym rune) rune {
		if sym == 0 || strings.ContainsRune(forbidden, sym) {
			return -1
		}
		return sym
	}, in)
	out = strings.TrimLeft(out, ".")
	if len(out) == 0 {
		out = "_bad_file_name_"
	}
	return out
}
