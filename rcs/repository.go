package rcs

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/danielrlewis/mkssi-fast-export/diag"
)

// Repository is the set of parsed RCS masters under one --rcs-dir,
// indexed by logical (relative) path and, case-insensitively, for the
// project.pj lookup described in the data model.
type Repository struct {
	Files       map[string]*File // keyed by LogicalName
	byLowerName map[string]*File
}

// NewRepository returns an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		Files:       make(map[string]*File),
		byLowerName: make(map[string]*File),
	}
}

// Add registers a parsed File in the repository's indices.
func (r *Repository) Add(f *File) {
	r.Files[f.LogicalName] = f
	r.byLowerName[strings.ToLower(f.LogicalName)] = f
}

// Lookup finds a File by exact logical path.
func (r *Repository) Lookup(logicalName string) (*File, bool) {
	f, ok := r.Files[logicalName]
	return f, ok
}

// LookupCaseInsensitive finds a File by case-insensitive logical path,
// used for locating "project.pj" regardless of the case actually used
// on disk.
func (r *Repository) LookupCaseInsensitive(logicalName string) (*File, bool) {
	f, ok := r.byLowerName[strings.ToLower(logicalName)]
	return f, ok
}

var vcTempFileRE = regexp.MustCompile(`^vc_[0-9a-fA-F]{4}\.000$`)
var mksRevsDirRE = regexp.MustCompile(`^mks\..*\.revs$`)

// skipEntry reports whether a directory-walk entry should be ignored
// per §4.11 step 1: ".", "..", any "*.pj" except ones explicitly
// ingested (the caller filters those separately by logical name),
// vc_XXXX.000 temp files, and mks.*.revs directories.
func skipEntry(name string, isDir bool) bool {
	if name == "." || name == ".." {
		return true
	}
	if isDir && mksRevsDirRE.MatchString(name) {
		return true
	}
	if !isDir && strings.HasSuffix(strings.ToLower(name), ".pj") {
		return true
	}
	if !isDir && vcTempFileRE.MatchString(name) {
		return true
	}
	return false
}

// Load walks rcsDir, parsing every RCS master it finds into a new
// Repository. Parse errors on individual files are recoverable: the
// file is recorded with Corrupt set and a warning is reported; only
// an error reading the directory tree itself is fatal.
func Load(rcsDir string, sink *diag.Sink) (*Repository, error) {
	repo := NewRepository()
	err := filepath.Walk(rcsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			sink.Report(diag.Wrap(diag.Io, path, "", err), false)
			return nil
		}
		rel, relErr := filepath.Rel(rcsDir, path)
		if relErr != nil {
			rel = path
		}
		name := info.Name()
		if info.IsDir() {
			if skipEntry(name, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if skipEntry(name, false) {
			return nil
		}
		logicalName := filepath.ToSlash(strings.TrimSuffix(rel, ",v"))
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			sink.Report(diag.Wrap(diag.Io, logicalName, "", readErr), false)
			return nil
		}
		f, parseErr := Parse(data, path, logicalName)
		if parseErr == ErrEncrypted {
			sink.Warn(diag.New(diag.Parse, logicalName, "", "encrypted archive, skipping"))
			return nil
		}
		if parseErr != nil {
			sink.Report(diag.Wrap(diag.Parse, logicalName, "", parseErr), false)
			repo.Add(&File{LogicalName: logicalName, MasterPath: path, Corrupt: true})
			return nil
		}
		repo.Add(f)
		return nil
	})
	if err != nil {
		return nil, diag.Wrap(diag.Io, rcsDir, "", err)
	}
	return repo, nil
}
