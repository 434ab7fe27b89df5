package patch

import (
	"os"
	"path/filepath"
)

// ReadReference loads a revision's content for a file stored in
// reference mode (RcsFile.RefSubdir non-empty): the content lives as
// a standalone file named after the revision string under the
// master's reference subdirectory, rather than as a patch chain. A
// missing file is not an error — it materializes as zero bytes.
func ReadReference(masterDir, refSubdir, revString string) ([]byte, error) {
	path := filepath.Join(masterDir, refSubdir, revString)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}
