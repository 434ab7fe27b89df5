// Package patch implements the two RCS reverse-diff engines: the
// line-oriented text engine (§4.3) and the byte-offset binary engine
// (§4.4). Both read already-unescaped revision data and patch text —
// callers are responsible for rcs.Unescape on the raw master spans
// before calling in here.
package patch

import (
	"bytes"
	"container/list"
	"fmt"
	"strconv"
)

type cell struct {
	text    []byte
	newline bool
	deleted bool
}

// splitLines normalizes CRLF to LF (a bare CR is left alone, it is not
// a line terminator) and splits into lines with the terminators
// stripped, reporting whether the final line carried a trailing
// newline.
func splitLines(data []byte) (lines [][]byte, finalNewline bool) {
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if len(normalized) == 0 {
		return nil, true
	}
	finalNewline = normalized[len(normalized)-1] == '\n'
	trimmed := normalized
	if finalNewline {
		trimmed = normalized[:len(normalized)-1]
	}
	return bytes.Split(trimmed, []byte("\n")), finalNewline
}

func parseLineHeader(s []byte) (lineno, count int, err error) {
	parts := bytes.Fields(s)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("patch: malformed command header %q", s)
	}
	lineno, err = strconv.Atoi(string(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("patch: bad line number in %q: %w", s, err)
	}
	count, err = strconv.Atoi(string(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("patch: bad count in %q: %w", s, err)
	}
	return lineno, count, nil
}

// ApplyLine applies an RCS line-edit script (a/d commands) against
// base, returning the resulting revision content. Commands address
// original (pre-patch) line numbers throughout the script, including
// delete targets referenced after earlier deletes in the same
// script — deleted cells are retained, not removed, until the final
// reset/renumber pass.
func ApplyLine(base, script []byte) ([]byte, error) {
	baseLines, baseFinalNewline := splitLines(base)

	l := list.New()
	index := make(map[int]*list.Element, len(baseLines))
	for i, ln := range baseLines {
		c := &cell{text: ln, newline: true}
		if i == len(baseLines)-1 {
			c.newline = baseFinalNewline
		}
		e := l.PushBack(c)
		index[i+1] = e
	}

	scriptLines, scriptFinalNewline := splitLines(script)
	pos := 0
	for pos < len(scriptLines) {
		header := scriptLines[pos]
		pos++
		if len(header) == 0 {
			continue
		}
		cmd := header[0]
		lineno, count, err := parseLineHeader(header[1:])
		if err != nil {
			return nil, err
		}
		switch cmd {
		case 'a':
			if pos+count > len(scriptLines) {
				return nil, fmt.Errorf("patch: a%d %d references past end of script", lineno, count)
			}
			var at *list.Element
			if lineno != 0 {
				e, ok := index[lineno]
				if !ok {
					return nil, fmt.Errorf("patch: a%d references unknown line %d", lineno, lineno)
				}
				at = e
			}
			lastLine := pos+count == len(scriptLines)
			for i := 0; i < count; i++ {
				c := &cell{text: scriptLines[pos+i], newline: true}
				if lastLine && i == count-1 && !scriptFinalNewline {
					c.newline = false
				}
				if at == nil {
					at = l.PushFront(c)
				} else {
					at = l.InsertAfter(c, at)
				}
			}
			pos += count
		case 'd':
			for i := 0; i < count; i++ {
				e, ok := index[lineno+i]
				if !ok {
					return nil, fmt.Errorf("patch: d%d %d references unknown line %d", lineno, count, lineno+i)
				}
				e.Value.(*cell).deleted = true
			}
		default:
			return nil, fmt.Errorf("patch: unknown command byte %q", string(cmd))
		}
	}

	var out bytes.Buffer
	var kept []*cell
	for e := l.Front(); e != nil; e = e.Next() {
		c := e.Value.(*cell)
		if !c.deleted {
			kept = append(kept, c)
		}
	}
	for i, c := range kept {
		out.Write(c.text)
		if i < len(kept)-1 || c.newline {
			out.WriteByte('\n')
		}
	}
	return out.Bytes(), nil
}
