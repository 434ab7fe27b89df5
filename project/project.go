// Package project parses MKSSI project manifests (project.pj and its
// variant-project children) materialized by the revision
// materializer, and accumulates the branch table described in the
// data model's Project entity.
package project

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/danielrlewis/mkssi-fast-export/branchname"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

var revisionMarkerRE = regexp.MustCompile(`\$Revision:\s*([^\s$]+)\s*\$`)

// FileEntry is one line of a project revision's file list: a file
// accepted into the checkpoint (type 'a') at a specific revision.
type FileEntry struct {
	CanonicalPath string
	Rev           revnum.Number
}

// FileList is the ordered file-list body of one materialized
// project.pj revision.
type FileList struct {
	Entries []FileEntry
}

// VariantEntry is one raw line of a _mks_variant_projects block,
// before branch-name sanitization and before the "highest rev wins"
// resolution across project revisions. Its RevisionNumber is not
// carried on the line itself (the line only names the variant's own
// vpXXXX.pj file and display name) — it is the revision of the
// project.pj manifest the block was found in, supplied by the caller.
type VariantEntry struct {
	RawName   string
	VariantID string // the "vpXXXX" token, ".pj" suffix stripped
}

const endOptionsMarker = "\nEndOptions\n"
const variantBlockStart = "block _mks_variant_projects"
const variantBlockEnd = "end"

// ParseRevision parses one materialized revision of a project
// manifest, validating its header and $Revision$ marker, then reading
// the file list and any _mks_variant_projects block that follows
// EndOptions. The returned revnum.Number is the manifest's own
// $Revision$ value, which callers attach to every VariantEntry found
// in this revision's block when folding it into a BranchTable.
func ParseRevision(data []byte) (*FileList, revnum.Number, []VariantEntry, error) {
	text := string(data)
	nl := strings.IndexByte(text, '\n')
	header := text
	if nl >= 0 {
		header = text[:nl]
	}
	header = strings.TrimSpace(header)
	if header != "--MKS Project--" && header != "--MKS Variant Project--" {
		return nil, revnum.Number{}, nil, fmt.Errorf("project: unrecognized header %q", header)
	}
	m := revisionMarkerRE.FindStringSubmatch(text)
	if m == nil {
		return nil, revnum.Number{}, nil, fmt.Errorf("project: missing $Revision$ marker")
	}
	projectRev, err := revnum.Parse(m[1])
	if err != nil {
		return nil, revnum.Number{}, nil, fmt.Errorf("project: bad $Revision$ value %q: %w", m[1], err)
	}

	idx := strings.Index(text, endOptionsMarker)
	if idx < 0 {
		return nil, revnum.Number{}, nil, fmt.Errorf("project: missing EndOptions")
	}
	body := text[idx+len(endOptionsMarker):]

	fl := &FileList{}
	var variants []VariantEntry
	inBlock := false
	for _, raw := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(raw)
		switch {
		case trimmed == variantBlockStart:
			inBlock = true
		case inBlock && trimmed == variantBlockEnd:
			inBlock = false
		case inBlock:
			if trimmed == "" {
				continue
			}
			ve, err := parseVariantLine(trimmed)
			if err != nil {
				return nil, revnum.Number{}, nil, err
			}
			variants = append(variants, ve)
		default:
			if trimmed == "" {
				continue
			}
			fe, ok, err := parseFileListLine(raw)
			if err != nil {
				return nil, revnum.Number{}, nil, err
			}
			if ok {
				fl.Entries = append(fl.Entries, fe)
			}
		}
	}
	return fl, projectRev, variants, nil
}

const projectDirPrefix = "$(projectdir)/"

// parseFileListLine parses one file-list line:
//
//	["] $(projectdir)/["] <path> ["] <SP> <type> <SP> <rev> [...]
//
// Type 'a' (archive) is accepted; 'f' (other) is silently skipped;
// 'i'/'s' are unsupported and fail the parse. Fields after <rev> are
// ignored.
func parseFileListLine(raw string) (FileEntry, bool, error) {
	line := strings.TrimRight(raw, "\r")
	if line == "" {
		return FileEntry{}, false, nil
	}

	var pathPart, rest string
	if strings.HasPrefix(line, `"`) {
		end := strings.Index(line[1:], `"`)
		if end < 0 {
			return FileEntry{}, false, fmt.Errorf("project: unterminated quoted path in %q", line)
		}
		end++
		quoted := line[1:end]
		if !strings.HasPrefix(quoted, projectDirPrefix) {
			return FileEntry{}, false, fmt.Errorf("project: expected %q prefix in %q", projectDirPrefix, line)
		}
		pathPart = quoted[len(projectDirPrefix):]
		rest = strings.TrimSpace(line[end+1:])
	} else if strings.HasPrefix(line, projectDirPrefix) {
		remainder := line[len(projectDirPrefix):]
		fields := strings.Fields(remainder)
		if len(fields) < 3 {
			return FileEntry{}, false, fmt.Errorf("project: malformed file-list line %q", line)
		}
		pathPart = fields[0]
		rest = strings.Join(fields[1:], " ")
	} else {
		// Not a file-list line (blank separator or unrecognized
		// trailing section); ignore.
		return FileEntry{}, false, nil
	}

	fields := strings.Fields(rest)
	if len(fields) < 2 {
		return FileEntry{}, false, fmt.Errorf("project: missing type/revision in %q", line)
	}
	typ, revStr := fields[0], fields[1]
	if len(typ) != 1 {
		return FileEntry{}, false, fmt.Errorf("project: bad file type %q in %q", typ, line)
	}
	switch typ[0] {
	case 'a':
		// accepted below
	case 'f':
		return FileEntry{}, false, nil
	case 'i', 's':
		return FileEntry{}, false, fmt.Errorf("project: unsupported file type %q in %q", typ, line)
	default:
		return FileEntry{}, false, fmt.Errorf("project: unknown file type %q in %q", typ, line)
	}

	rev, err := revnum.Parse(revStr)
	if err != nil {
		return FileEntry{}, false, fmt.Errorf("project: bad revision %q in %q: %w", revStr, line, err)
	}
	return FileEntry{CanonicalPath: pathPart, Rev: rev}, true, nil
}

// parseVariantLine parses one _mks_variant_projects line:
// "rev=vpXXXX.pj, \"Name\"". The leading "rev=" is a fixed key; its
// value is the variant's own vpXXXX.pj file reference, not a
// RevisionNumber.
func parseVariantLine(line string) (VariantEntry, error) {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return VariantEntry{}, fmt.Errorf("project: malformed variant line %q", line)
	}
	key := strings.TrimSpace(line[:eq])
	if key != "rev" {
		return VariantEntry{}, fmt.Errorf("project: expected %q key in variant line %q", "rev", line)
	}
	rest := strings.TrimSpace(line[eq+1:])

	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return VariantEntry{}, fmt.Errorf("project: malformed variant line %q", line)
	}
	vp := strings.TrimSpace(rest[:comma])
	namePart := strings.Trim(strings.TrimSpace(rest[comma+1:]), `"`)

	return VariantEntry{
		RawName:   namePart,
		VariantID: strings.TrimSuffix(vp, ".pj"),
	}, nil
}

// BranchRecord is one resolved entry of the branch table: the
// sanitized name that wins across every project revision that
// mentioned it, and the highest revision number it was recorded at.
type BranchRecord struct {
	Name      string
	Rev       revnum.Number
	VariantID string
}

// BranchTable accumulates VariantEntry observations from every
// materialized project revision, in order, resolving the "highest
// rev wins" rule from §4.7 as entries are added.
type BranchTable struct {
	byName map[string]*BranchRecord
}

// NewBranchTable returns an empty BranchTable.
func NewBranchTable() *BranchTable {
	return &BranchTable{byName: make(map[string]*BranchRecord)}
}

// Add folds one project revision's variant entries into the table.
// projectRev is the revision of the project.pj manifest the entries
// were read from (ParseRevision's second return value), applied
// uniformly to every entry since the variant line itself carries no
// RevisionNumber of its own. A sanitization failure is reported but
// does not abort the run; recoverable per the error handling design
// (the branch is simply absent from the table).
func (t *BranchTable) Add(projectRev revnum.Number, entries []VariantEntry, onWarn func(raw string, err error)) {
	for _, e := range entries {
		name, err := branchname.Sanitize(e.RawName)
		if err != nil {
			if onWarn != nil {
				onWarn(e.RawName, err)
			}
			continue
		}
		existing, ok := t.byName[name]
		if !ok || revnum.Compare(projectRev, existing.Rev) > 0 {
			t.byName[name] = &BranchRecord{Name: name, Rev: projectRev, VariantID: e.VariantID}
		}
	}
}

// Records returns every resolved branch record, unordered.
func (t *BranchTable) Records() []BranchRecord {
	out := make([]BranchRecord, 0, len(t.byName))
	for _, r := range t.byName {
		out = append(out, *r)
	}
	return out
}

// Lookup finds a resolved branch record by its sanitized name.
func (t *BranchTable) Lookup(name string) (BranchRecord, bool) {
	r, ok := t.byName[name]
	if !ok {
		return BranchRecord{}, false
	}
	return *r, true
}
