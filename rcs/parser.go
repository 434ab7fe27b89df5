package rcs

import (
	"fmt"
	"time"

	"github.com/danielrlewis/mkssi-fast-export/revnum"
)

// ErrEncrypted is returned when a master begins with the MKSSI
// encrypted-archive marker; callers treat this as "corrupt, skip"
// per §4.2.
var ErrEncrypted = fmt.Errorf("rcs: encrypted archive")

const encryptedMarker = "#!encrypt\n"
const mksArchiveHeader = "--MKS-Archive--"

// Parse parses the raw bytes of one RCS master file. masterPath and
// logicalName are recorded on the resulting File for diagnostics and
// reference-storage lookups; they are not derived from the byte
// stream itself.
func Parse(data []byte, masterPath, logicalName string) (*File, error) {
	data = skipOptionalArchiveHeader(data)
	if hasEncryptedMarker(data) {
		return nil, ErrEncrypted
	}

	f := &File{
		LogicalName: logicalName,
		MasterPath:  masterPath,
		Versions:    make(map[string]*Version),
		Patches:     make(map[string]*Patch),
	}

	s := newScanner(data)
	if err := parseAdmin(s, f); err != nil {
		return nil, err
	}
	if err := parseDeltas(s, f); err != nil {
		return nil, err
	}
	if err := parseDesc(s); err != nil {
		return nil, err
	}
	if err := parseDeltatexts(s, f); err != nil {
		return nil, err
	}

	synthesizePlaceholderPatches(f)
	return f, nil
}

func skipOptionalArchiveHeader(data []byte) []byte {
	if len(data) >= len(mksArchiveHeader) && string(data[:len(mksArchiveHeader)]) == mksArchiveHeader {
		i := len(mksArchiveHeader)
		for i < len(data) && data[i] != '\n' {
			i++
		}
		if i < len(data) {
			i++
		}
		return data[i:]
	}
	return data
}

func hasEncryptedMarker(data []byte) bool {
	return len(data) >= len(encryptedMarker) && string(data[:len(encryptedMarker)]) == encryptedMarker
}

func parseAdmin(s *scanner, f *File) error {
	w := s.word()
	if w != "head" {
		return fmt.Errorf("rcs: expected 'head', got %q", w)
	}
	headStr := s.word()
	if headStr != "" {
		n, err := revnum.Parse(headStr)
		if err != nil {
			return fmt.Errorf("rcs: bad head revision %q: %w", headStr, err)
		}
		f.Head = n
	}
	if err := s.expectSemi(); err != nil {
		return err
	}

	for {
		s.skipSpace()
		save := s.pos
		kw := s.word()
		switch kw {
		case "branch":
			v := s.word()
			if v != "" {
				n, err := revnum.Parse(v)
				if err != nil {
					return fmt.Errorf("rcs: bad branch revision %q: %w", v, err)
				}
				f.DefaultBranch = n
			}
			if err := s.expectSemi(); err != nil {
				return err
			}
		case "access":
			if err := skipWordsUntilSemi(s); err != nil {
				return err
			}
		case "symbols":
			if err := parseSymbols(s, f); err != nil {
				return err
			}
		case "locks":
			if err := parseLocks(s, f); err != nil {
				return err
			}
		case "strict":
			f.Strict = true
			if err := s.expectSemi(); err != nil {
				return err
			}
		case "comment", "expand":
			if s.atString() {
				if _, _, _, err := s.stringLiteral(); err != nil {
					return err
				}
			} else if err := skipWordsUntilSemi(s); err != nil {
				return err
			}
			if err := s.expectSemi(); err != nil {
				return err
			}
		default:
			// Either a newphrase (unknown admin-section field) or the
			// start of the first delta. A delta starts with a bare
			// revision number token with no following ':' or '@'.
			if looksLikeRevision(kw) {
				s.pos = save
				return nil
			}
			if kw == "" {
				return fmt.Errorf("rcs: unexpected end of admin section")
			}
			if err := skipNewPhraseValue(s); err != nil {
				return err
			}
		}
	}
}

func looksLikeRevision(w string) bool {
	if w == "" {
		return false
	}
	_, err := revnum.Parse(w)
	return err == nil
}

func skipWordsUntilSemi(s *scanner) error {
	for {
		s.skipSpace()
		if s.eof() {
			return fmt.Errorf("rcs: unexpected eof skipping to ';'")
		}
		if s.peek() == ';' {
			return nil
		}
		if s.atString() {
			if _, _, _, err := s.stringLiteral(); err != nil {
				return err
			}
			continue
		}
		s.word()
	}
}

// skipNewPhraseValue skips an unrecognized "ID word* ;" admin/delta
// field, consuming the trailing ';'.
func skipNewPhraseValue(s *scanner) error {
	if err := skipWordsUntilSemi(s); err != nil {
		return err
	}
	return s.expectSemi()
}

func parseSymbols(s *scanner, f *File) error {
	for {
		s.skipSpace()
		if s.eof() {
			return fmt.Errorf("rcs: unexpected eof in symbols")
		}
		if s.peek() == ';' {
			s.pos++
			return nil
		}
		pair := s.word()
		if pair == "" {
			return fmt.Errorf("rcs: malformed symbols entry")
		}
		name, rev, err := splitColonPair(pair)
		if err != nil {
			return fmt.Errorf("rcs: malformed symbol %q: %w", pair, err)
		}
		n, err := revnum.Parse(rev)
		if err != nil {
			return fmt.Errorf("rcs: bad symbol revision %q: %w", rev, err)
		}
		f.Symbols = append(f.Symbols, Symbol{Name: name, Rev: n})
	}
}

func parseLocks(s *scanner, f *File) error {
	for {
		s.skipSpace()
		if s.eof() {
			return fmt.Errorf("rcs: unexpected eof in locks")
		}
		if s.peek() == ';' {
			s.pos++
			return nil
		}
		pair := s.word()
		if pair == "" {
			return fmt.Errorf("rcs: malformed locks entry")
		}
		name, rev, err := splitColonPair(pair)
		if err != nil {
			return fmt.Errorf("rcs: malformed lock %q: %w", pair, err)
		}
		n, err := revnum.Parse(rev)
		if err != nil {
			return fmt.Errorf("rcs: bad lock revision %q: %w", rev, err)
		}
		f.Locks = append(f.Locks, Lock{Locker: name, Rev: n})
	}
}

func splitColonPair(s string) (left, right string, err error) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("missing ':'")
}

func parseDeltas(s *scanner, f *File) error {
	for {
		s.skipSpace()
		save := s.pos
		revStr := s.word()
		if revStr == "desc" {
			s.pos = save
			return nil
		}
		if !looksLikeRevision(revStr) {
			return fmt.Errorf("rcs: expected revision or 'desc', got %q", revStr)
		}
		num, err := revnum.Parse(revStr)
		if err != nil {
			return err
		}
		v := &Version{Number: num}
		if err := parseOneDelta(s, v); err != nil {
			return err
		}
		key := num.String()
		if _, exists := f.Versions[key]; !exists {
			f.VersionOrder = append(f.VersionOrder, key)
		}
		f.Versions[key] = v
	}
}

func parseOneDelta(s *scanner, v *Version) error {
	for {
		s.skipSpace()
		save := s.pos
		kw := s.word()
		switch kw {
		case "date":
			dateStr := s.word()
			t, err := parseRCSDate(dateStr)
			if err != nil {
				return fmt.Errorf("rcs: bad date %q: %w", dateStr, err)
			}
			v.Date = t
			if err := s.expectSemi(); err != nil {
				return err
			}
		case "author":
			v.Author = s.word()
			if err := s.expectSemi(); err != nil {
				return err
			}
		case "state":
			s.skipSpace()
			if !s.eof() && s.peek() != ';' {
				v.State = s.word()
			}
			if err := s.expectSemi(); err != nil {
				return err
			}
		case "branches":
			for {
				s.skipSpace()
				if s.eof() {
					return fmt.Errorf("rcs: unexpected eof in branches")
				}
				if s.peek() == ';' {
					s.pos++
					break
				}
				bw := s.word()
				n, err := revnum.Parse(bw)
				if err != nil {
					return fmt.Errorf("rcs: bad branch revision %q: %w", bw, err)
				}
				v.Branches = append(v.Branches, n)
			}
		case "next":
			s.skipSpace()
			if !s.eof() && s.peek() != ';' {
				nw := s.word()
				n, err := revnum.Parse(nw)
				if err != nil {
					return fmt.Errorf("rcs: bad next revision %q: %w", nw, err)
				}
				v.Next = n
			}
			if err := s.expectSemi(); err != nil {
				return err
			}
		default:
			// Either a newphrase, or the start of the next delta/desc.
			if kw == "desc" || looksLikeRevision(kw) {
				s.pos = save
				return nil
			}
			if kw == "" {
				return fmt.Errorf("rcs: unexpected eof in delta")
			}
			if err := skipNewPhraseValue(s); err != nil {
				return err
			}
		}
	}
}

// parseRCSDate parses RCS's "YY.MM.DD.HH.MM.SS" (or 4-digit year)
// timestamp, which is always expressed in UTC.
func parseRCSDate(s string) (time.Time, error) {
	parts := make([]int, 0, 6)
	cur := 0
	started := false
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == '.' {
			if !started && i == len(s) {
				break
			}
			parts = append(parts, cur)
			cur = 0
			started = false
			continue
		}
		c := s[i]
		if c < '0' || c > '9' {
			return time.Time{}, fmt.Errorf("non-digit in date")
		}
		cur = cur*10 + int(c-'0')
		started = true
	}
	if len(parts) != 6 {
		return time.Time{}, fmt.Errorf("expected 6 date components, got %d", len(parts))
	}
	year := parts[0]
	if year < 100 {
		if year >= 70 {
			year += 1900
		} else {
			year += 2000
		}
	}
	return time.Date(year, time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], 0, time.UTC), nil
}

func parseDesc(s *scanner) error {
	w := s.word()
	if w != "desc" {
		return fmt.Errorf("rcs: expected 'desc', got %q", w)
	}
	_, _, _, err := s.stringLiteral()
	return err
}

func parseDeltatexts(s *scanner, f *File) error {
	for {
		s.skipSpace()
		if s.eof() {
			return nil
		}
		revStr := s.word()
		if revStr == "" {
			return nil
		}
		num, err := revnum.Parse(revStr)
		if err != nil {
			return fmt.Errorf("rcs: bad deltatext revision %q: %w", revStr, err)
		}
		p := &Patch{Number: num}
		if err := parseOneDeltatext(s, p); err != nil {
			return err
		}
		f.Patches[num.String()] = p
	}
}

func parseOneDeltatext(s *scanner, p *Patch) error {
	sawLog, sawText := false, false
	for {
		s.skipSpace()
		if s.eof() {
			break
		}
		save := s.pos
		kw := s.word()
		switch kw {
		case "log":
			text, _, _, err := s.stringLiteral()
			if err != nil {
				return err
			}
			p.Log = text
			sawLog = true
		case "text":
			off, length, err := s.skipStringLiteral()
			if err != nil {
				return err
			}
			p.TextOffset = off
			p.TextLength = length
			p.HasText = true
			sawText = true
		default:
			if sawLog && sawText {
				// Next deltatext or EOF.
				s.pos = save
				return nil
			}
			if kw == "" {
				return fmt.Errorf("rcs: unexpected eof in deltatext")
			}
			if err := skipNewPhraseValue(s); err != nil {
				return err
			}
		}
		if sawLog && sawText {
			return nil
		}
	}
	return nil
}

// synthesizePlaceholderPatches implements §4.2's "after parse,
// synthesize placeholder Patches for any Versions missing a Patch,
// recursively marking the missing flag to all descendant revisions."
func synthesizePlaceholderPatches(f *File) {
	for _, key := range f.VersionOrder {
		if _, ok := f.Patches[key]; !ok {
			v := f.Versions[key]
			f.Patches[key] = &Patch{Number: v.Number, Missing: true}
		}
	}
	propagateMissing(f)
}

// propagateMissing walks from head over the same Next/Branches tree
// the materializer walks (§4.6), visiting a node's branch roots before
// its Next link, so that a missing patch taints every revision
// reachable from it.
func propagateMissing(f *File) {
	visited := make(map[string]bool)
	var walk func(num revnum.Number, inheritedMissing bool)
	walk = func(num revnum.Number, inheritedMissing bool) {
		key := num.String()
		if visited[key] {
			return
		}
		visited[key] = true
		v, ok := f.Versions[key]
		if !ok {
			return
		}
		p := f.Patches[key]
		missing := inheritedMissing || (p != nil && p.Missing)
		if p != nil {
			p.Missing = missing
		}
		for _, b := range v.Branches {
			walk(b, missing)
		}
		if !v.Next.IsTip() && len(v.Next) > 0 {
			walk(v.Next, missing)
		}
	}
	if len(f.Head) > 0 {
		walk(f.Head, false)
	}
}
