// Package keyword expands the RCS keyword markers ($Author$, $Date$,
// $Header$, $Id$, $Locker$, $ProjectName$, $ProjectRevision$,
// $RCSfile$, $Revision$, $Source$, $State$, $Log$) inside a
// materialized revision's text, tracking the side effects on the
// owning Version that decide whether a blob is reusable or must be
// re-materialized per referencing project revision.
package keyword

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// Context carries the run-wide values needed to expand $Header$,
// $Source$ and $ProjectName$, which embed paths relative to the
// export's configured directories rather than anything stored on the
// file itself.
type Context struct {
	SourceDir     string
	PnameDir      string
	ProjectPJName string
}

// Revision is the per-revision metadata the expander needs; it is
// deliberately decoupled from rcs.Version so this package has no
// import-cycle dependency on rcs.
type Revision struct {
	Number     revnum.Number
	Date       time.Time
	Author     string
	State      string
	Locker     string
	LogMessage string
}

// Flags records which keyword-driven side effects fired during one
// Expand call, mirroring kw_name/kw_path/kw_projrev/jit from §4.5.
type Flags struct {
	KwName    bool
	KwPath    bool
	KwProjRev bool
}

// JIT reports whether a revision carrying these flags must be
// re-materialized per referencing project revision rather than
// reusing a single blob mark.
func (f Flags) JIT() bool {
	return f.KwProjRev
}

var markerRE = regexp.MustCompile(`\$(Author|Date|Header|Id|Locker|ProjectName|ProjectRevision|RCSfile|Revision|Source|State|Log)(:[^$\n]*)?\$`)

// rcsDateLayout matches the classic RCS $Date$ keyword rendering.
const rcsDateLayout = "2006/01/02 15:04:05"

// IsDuplicateRevisionBranchRoot reports whether rev is a branch root
// created automatically on branching: log text exactly
// "Duplicate revision\n", revision length >= 4, last component == 1.
func IsDuplicateRevisionBranchRoot(rev Revision) bool {
	return rev.LogMessage == "Duplicate revision\n" &&
		len(rev.Number) >= 4 &&
		rev.Number[len(rev.Number)-1] == 1
}

// Expand substitutes every recognized keyword marker in data, given
// the file's logical name, the revision being materialized, and
// (only needed for the duplicate-revision branch-root $Log$ case)
// the immediately preceding revision. It returns the expanded text
// and the flags that fired.
func Expand(data []byte, logicalName string, rev Revision, prev *Revision, ctx Context, projectRev string) ([]byte, Flags, error) {
	basename := logicalName
	if i := strings.LastIndexByte(basename, '/'); i >= 0 {
		basename = basename[i+1:]
	}

	var flags Flags
	lines, finalNewline := splitLines(data)
	var out [][]byte
	for _, line := range lines {
		expanded, lineFlags, err := expandLine(line, logicalName, basename, rev, prev, ctx, projectRev)
		if err != nil {
			return nil, flags, err
		}
		flags.KwName = flags.KwName || lineFlags.KwName
		flags.KwPath = flags.KwPath || lineFlags.KwPath
		flags.KwProjRev = flags.KwProjRev || lineFlags.KwProjRev
		out = append(out, expanded...)
	}

	var buf bytes.Buffer
	for i, line := range out {
		buf.Write(line)
		if i < len(out)-1 || finalNewline {
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), flags, nil
}

// expandLine expands every marker on one line, returning possibly
// several output lines ($Log$ inserts a synthetic block below its
// own line and terminates further scanning of that line).
func expandLine(line []byte, logicalName, basename string, rev Revision, prev *Revision, ctx Context, projectRev string) ([][]byte, Flags, error) {
	var flags Flags
	matches := markerRE.FindAllSubmatchIndex(line, -1)
	if matches == nil {
		return [][]byte{line}, flags, nil
	}

	var buf bytes.Buffer
	pos := 0
	for _, loc := range matches {
		if loc[0] < pos {
			continue // consumed by a preceding $Log$ substitution, unreachable in practice
		}
		keyword := string(line[loc[2]:loc[3]])
		buf.Write(line[pos:loc[0]])

		if keyword == "Log" {
			leading := line[:loc[0]]
			trailing := line[loc[1]:]
			buf.WriteString(fmt.Sprintf("$Log: %s $", basename))
			buf.Write(trailing)
			logLines := buildLogBlock(leading, trailing, basename, rev, prev)
			result := [][]byte{append([]byte{}, buf.Bytes()...)}
			result = append(result, logLines...)
			return result, flags, nil
		}

		replacement, rflags := replaceMarker(keyword, logicalName, basename, rev, ctx, projectRev)
		flags.KwName = flags.KwName || rflags.KwName
		flags.KwPath = flags.KwPath || rflags.KwPath
		flags.KwProjRev = flags.KwProjRev || rflags.KwProjRev
		buf.WriteString(replacement)
		pos = loc[1]
	}
	buf.Write(line[pos:])
	return [][]byte{buf.Bytes()}, flags, nil
}

// replaceMarker computes the substitution text for every keyword
// except $Log$, which expandLine handles inline since it alone
// inserts extra lines.
func replaceMarker(keyword, logicalName, basename string, rev Revision, ctx Context, projectRev string) (string, Flags) {
	var flags Flags
	dateStr := rev.Date.Format(rcsDateLayout)

	switch keyword {
	case "Author":
		return fmt.Sprintf("$Author: %s $", rev.Author), flags
	case "Date":
		return fmt.Sprintf("$Date: %s $", dateStr), flags
	case "Header":
		flags.KwPath = true
		return fmt.Sprintf("$Header: %s/%s %s %s %s %s $",
			ctx.SourceDir, logicalName, rev.Number.String(), dateStr, rev.Author, rev.State), flags
	case "Id":
		idLine := fmt.Sprintf("$Id: %s %s %s %s %s", basename, rev.Number.String(), dateStr, rev.Author, rev.State)
		if rev.Locker != "" {
			idLine += " " + rev.Locker
		}
		flags.KwName = true
		return idLine + " $", flags
	case "Locker":
		return fmt.Sprintf("$Locker: %s $", rev.Locker), flags
	case "ProjectName":
		return fmt.Sprintf("$ProjectName: %s/%s $", ctx.PnameDir, ctx.ProjectPJName), flags
	case "ProjectRevision":
		flags.KwProjRev = true
		return fmt.Sprintf("$ProjectRevision: %s $", projectRev), flags
	case "RCSfile":
		flags.KwName = true
		return fmt.Sprintf("$RCSfile: %s $", basename), flags
	case "Revision":
		return fmt.Sprintf("$Revision: %s $", rev.Number.String()), flags
	case "Source":
		flags.KwPath = true
		return fmt.Sprintf("$Source: %s/%s $", ctx.SourceDir, logicalName), flags
	case "State":
		return fmt.Sprintf("$State: %s $", rev.State), flags
	default:
		return fmt.Sprintf("$%s$", keyword), flags
	}
}

// buildLogBlock synthesizes the lines inserted immediately below a
// $Log$ marker: one header line plus one line per non-blank line of
// the revision's log message, each framed with the marker line's
// leading/trailing characters. If rev is a duplicate-revision branch
// root, the preceding revision's header+log is appended the same way.
func buildLogBlock(leading, trailing []byte, basename string, rev Revision, prev *Revision) [][]byte {
	var out [][]byte
	out = append(out, logEntryLines(leading, trailing, rev)...)
	if IsDuplicateRevisionBranchRoot(rev) && prev != nil {
		out = append(out, logEntryLines(leading, trailing, *prev)...)
	}
	return out
}

func logEntryLines(leading, trailing []byte, rev Revision) [][]byte {
	var out [][]byte
	header := fmt.Sprintf("Revision %s  %s  %s", rev.Number.String(), rev.Date.Format(rcsDateLayout), rev.Author)
	out = append(out, frame(leading, header, trailing))
	for _, l := range strings.Split(strings.TrimRight(rev.LogMessage, "\n"), "\n") {
		if l == "" {
			continue
		}
		out = append(out, frame(leading, escapeAt(l), trailing))
	}
	return out
}

func frame(leading []byte, text string, trailing []byte) []byte {
	var buf bytes.Buffer
	buf.Write(leading)
	buf.WriteString(text)
	buf.Write(trailing)
	return buf.Bytes()
}

// escapeAt re-escapes literal '@' as '@@', matching the inverse of
// the rcs package's Unescape when embedding log text that originated
// inside an '@...@' master string.
func escapeAt(s string) string {
	return strings.ReplaceAll(s, "@", "@@")
}

func splitLines(data []byte) (lines [][]byte, finalNewline bool) {
	if len(data) == 0 {
		return nil, true
	}
	finalNewline = data[len(data)-1] == '\n'
	trimmed := data
	if finalNewline {
		trimmed = data[:len(data)-1]
	}
	return bytes.Split(trimmed, []byte("\n")), finalNewline
}
