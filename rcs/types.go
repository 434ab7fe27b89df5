// Package rcs parses one RCS ",v" master file into the schema
// described by the data model: head/symbols/locks/version nodes and
// patch nodes carrying byte offsets into the master rather than
// materialized text, so that the patch engines can read on demand.
package rcs

import (
	"time"

	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// File is one parsed RCS master, or a dummy placeholder for a file
// that exists only in a project directory listing.
type File struct {
	LogicalName   string // relative path as referenced by the project
	MasterPath    string // location of the ",v" file on disk
	Binary        bool
	Corrupt       bool
	RefSubdir     string // non-empty: revisions stored by reference under this subdir
	Head          revnum.Number
	DefaultBranch revnum.Number // nil-able (len 0)
	Symbols       []Symbol      // ordered label -> revision
	Locks         []Lock
	Strict        bool
	Versions      map[string]*Version // keyed by Number.String()
	Patches       map[string]*Patch   // keyed by Number.String()
	Dummy         bool                // has_member_type_other: exists only in the project dir, no on-disk master

	// Derived, filled in after parse / during materialization.
	OtherBlobMark int
	VersionOrder  []string // Numbers in Versions, insertion order
}

// Symbol is one entry of the RCS "symbols" table: a label mapped to a
// revision number (used for both tags and MKSSI branch markers).
type Symbol struct {
	Name string
	Rev  revnum.Number
}

// Lock is one entry of the RCS "locks" table.
type Lock struct {
	Locker string
	Rev    revnum.Number
}

// Version is the per-revision metadata node (RCS "delta").
type Version struct {
	Number       revnum.Number
	Date         time.Time
	Author       string
	State        string
	Branches     []revnum.Number // child-branch roots, in file order
	Next         revnum.Number   // next link in the ",v" chain (nil-able)

	// Derived flags set by the keyword expander (§4.5) and the
	// materializer/export driver.
	KwName        bool // expansion consumed the basename
	KwPath        bool // expansion consumed the full path
	KwProjRev     bool // $ProjectRevision$ appeared
	JIT           bool // must be re-materialized per referencing project revision
	Checkpointed  bool // referenced by some project.pj revision
	BlobMark      int
	Executable    bool
}

// Patch is the per-revision edit-script node (RCS "deltatext").
// TextOffset/TextLength locate the raw `@...@`-escaped text region
// inside the master file; Missing is set when no deltatext block was
// found for this revision's Version (placeholder per §4.2), and
// propagates to all descendants (§4.2, §4.6).
type Patch struct {
	Number     revnum.Number
	Log        string
	TextOffset int64
	TextLength int64
	HasText    bool
	Missing    bool
}
