package export

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
)

// loadManifest finds and parses one project manifest ("project.pj" or
// a variant's "vpXXXX.pj"), registering it in repo under its logical
// name. These files never go through rcs.Load (§4.11 step 1 excludes
// every "*.pj" from the general directory walk), so the export driver
// ingests them explicitly here.
func loadManifest(rcsDir string, repo *rcs.Repository, sink *diag.Sink, name string) (*rcs.File, error) {
	if f, ok := repo.LookupCaseInsensitive(name); ok {
		return f, nil
	}

	masterName := name + ",v"
	path := filepath.Join(rcsDir, masterName)
	data, err := os.ReadFile(path)
	if err != nil {
		found, ferr := findManifestFile(rcsDir, masterName)
		if ferr != nil {
			return nil, diag.Wrap(diag.Io, name, "", err)
		}
		path = found
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, diag.Wrap(diag.Io, name, "", err)
		}
	}

	f, parseErr := rcs.Parse(data, path, name)
	if parseErr != nil {
		return nil, diag.Wrap(diag.Parse, name, "", parseErr)
	}
	repo.Add(f)
	return f, nil
}

// findManifestFile walks rcsDir looking for masterName, matched
// case-insensitively, for the case where a manifest lives in a
// subdirectory rather than directly under --rcs-dir.
func findManifestFile(rcsDir, masterName string) (string, error) {
	lower := strings.ToLower(masterName)
	var found string
	err := filepath.Walk(rcsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || found != "" {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.ToLower(info.Name()) == lower {
			found = path
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", os.ErrNotExist
	}
	return found, nil
}
