// Package materialize walks one RCS file's revision tree and
// reconstructs each revision's content by threading the line- or
// binary-patch engine (or, for reference-stored files, a direct
// lookup) along the tree, exactly once per revision, in the pre-order
// trunk-then-branches order described by §4.6.
package materialize

import (
	"os"
	"path/filepath"

	"github.com/danielrlewis/mkssi-fast-export/diag"
	"github.com/danielrlewis/mkssi-fast-export/patch"
	"github.com/danielrlewis/mkssi-fast-export/rcs"
	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// Callback receives one revision's materialized content.
type Callback func(f *rcs.File, rev revnum.Number, data []byte) error

// Walk materializes every revision of f, invoking cb once per
// revision in pre-order (head first, then each trunk parent; a node's
// branch roots are recursed into after the whole chain reachable
// through its Next link has been walked). A missing patch (§4.2's propagated placeholder) or a
// patch that fails to apply emits empty content with a recoverable
// warning rather than aborting the walk; everything reached after
// the break point gets the same treatment, since it has no valid
// prev_data to patch against.
func Walk(f *rcs.File, sink *diag.Sink, cb Callback) error {
	if f.Dummy || f.Corrupt || len(f.Head) == 0 {
		return nil
	}
	var master []byte
	if f.RefSubdir == "" {
		data, err := os.ReadFile(f.MasterPath)
		if err != nil {
			return diag.Wrap(diag.Io, f.LogicalName, "", err)
		}
		master = data
	}
	return walkNode(f, f.Head, nil, false, master, sink, cb)
}

func walkNode(f *rcs.File, num revnum.Number, prevData []byte, hasPrev bool, master []byte, sink *diag.Sink, cb Callback) error {
	ver, ok := f.Versions[num.String()]
	if !ok {
		sink.Warn(diag.New(diag.CorruptRevision, f.LogicalName, num.String(), "version missing during materialization"))
		return nil
	}

	data := materializeOne(f, num, prevData, hasPrev, master, sink)
	if err := cb(f, num, data); err != nil {
		return err
	}

	if len(ver.Next) > 0 {
		if err := walkNode(f, ver.Next, data, true, master, sink, cb); err != nil {
			return err
		}
	}
	for _, branchRoot := range ver.Branches {
		branchData := append([]byte(nil), data...)
		if err := walkNode(f, branchRoot, branchData, true, master, sink, cb); err != nil {
			return err
		}
	}
	return nil
}

// materializeOne computes one revision's content. hasPrev is false
// only for the head revision, whose patch text is the literal full
// content rather than an edit script; every other revision applies
// its patch against prevData (which may itself be empty content left
// behind by an earlier failure in this same walk).
func materializeOne(f *rcs.File, num revnum.Number, prevData []byte, hasPrev bool, master []byte, sink *diag.Sink) []byte {
	if f.RefSubdir != "" {
		data, err := patch.ReadReference(filepath.Dir(f.MasterPath), f.RefSubdir, num.String())
		if err != nil {
			sink.Report(diag.Wrap(diag.Io, f.LogicalName, num.String(), err), false)
			return nil
		}
		return data
	}

	p, ok := f.Patches[num.String()]
	if !ok || p.Missing || !p.HasText {
		sink.Warn(diag.New(diag.CorruptRevision, f.LogicalName, num.String(), "missing patch, content unrecoverable"))
		return nil
	}

	script := rcs.Unescape(master[p.TextOffset : p.TextOffset+p.TextLength])
	if !hasPrev {
		return script
	}

	var (
		data []byte
		err  error
	)
	if f.Binary {
		data, err = patch.ApplyBinary(prevData, script)
	} else {
		data, err = patch.ApplyLine(prevData, script)
	}
	if err != nil {
		sink.Warn(diag.Wrap(diag.BadPatch, f.LogicalName, num.String(), err))
		return nil
	}
	return data
}
