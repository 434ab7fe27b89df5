package export

import (
	"strings"

	"github.com/h2non/filetype"
)

// scriptExtensions is the known-script-extension table from §4.13.
var scriptExtensions = map[string]bool{
	".sh":   true,
	".bash": true,
	".ksh":  true,
	".csh":  true,
	".pl":   true,
	".py":   true,
	".rb":   true,
	".awk":  true,
}

// isExecutable determines whether a materialized revision's content
// should be checked in with mode 0755: a leading shebang, a known
// script extension on its logical path, or ELF magic bytes.
func isExecutable(logicalName string, data []byte) bool {
	if hasShebang(data) {
		return true
	}
	if ext := extOf(logicalName); scriptExtensions[ext] {
		return true
	}
	return hasELFMagic(data)
}

func hasShebang(data []byte) bool {
	return len(data) >= 2 && data[0] == '#' && data[1] == '!'
}

func extOf(logicalName string) string {
	i := strings.LastIndexByte(logicalName, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(logicalName[i:])
}

// hasELFMagic sniffs the leading bytes via the same filetype matcher
// the teacher uses to distinguish binary content (setCompressionDetails),
// here checked for the ELF executable signature specifically.
func hasELFMagic(data []byte) bool {
	head := data
	if len(head) > 261 {
		head = head[:261]
	}
	kind, err := filetype.Match(head)
	if err != nil {
		return false
	}
	return kind.Extension == "elf"
}
