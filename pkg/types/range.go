package types

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// SourceRange is a selection in 1-based line and byte-column coordinates.
// StartCol 0 starts at the beginning of StartLine; EndCol 0 runs to the end
// of EndLine. EndCol is exclusive.
type SourceRange struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

func (r SourceRange) String() string {
	if r.StartCol == 0 && r.EndCol == 0 {
		if r.StartLine == r.EndLine {
			return strconv.Itoa(r.StartLine)
		}
		return fmt.Sprintf("%d-%d", r.StartLine, r.EndLine)
	}
	return fmt.Sprintf("%d:%d-%d:%d", r.StartLine, r.StartCol, r.EndLine, r.EndCol)
}

// ParseSourceRange accepts "12", "12-15" and "12:5-15:20".
func ParseSourceRange(s string) (SourceRange, error) {
	var r SourceRange
	from, to, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		to = from
	}
	var err error
	if r.StartLine, r.StartCol, err = parseLineCol(from); err != nil {
		return r, fmt.Errorf("invalid range %q: %w", s, err)
	}
	if r.EndLine, r.EndCol, err = parseLineCol(to); err != nil {
		return r, fmt.Errorf("invalid range %q: %w", s, err)
	}
	if r.EndLine < r.StartLine || (r.EndLine == r.StartLine && r.EndCol != 0 && r.EndCol <= r.StartCol) {
		return r, fmt.Errorf("invalid range %q: end before start", s)
	}
	return r, nil
}

func parseLineCol(s string) (int, int, error) {
	lineStr, colStr, hasCol := strings.Cut(s, ":")
	line, err := strconv.Atoi(lineStr)
	if err != nil || line < 1 {
		return 0, 0, fmt.Errorf("bad line %q", lineStr)
	}
	if !hasCol {
		return line, 0, nil
	}
	col, err := strconv.Atoi(colStr)
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("bad column %q", colStr)
	}
	return line, col, nil
}

// Offsets converts the range into a half-open byte interval of src.
func (r SourceRange) Offsets(src []byte) (int, int, error) {
	starts := []int{0}
	for i, b := range src {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	lineSpan := func(line int) (int, int, error) {
		if line < 1 || line > len(starts) {
			return 0, 0, fmt.Errorf("line %d out of range (file has %d lines)", line, len(starts))
		}
		begin := starts[line-1]
		end := len(src)
		if line < len(starts) {
			end = starts[line] - 1
		}
		return begin, end, nil
	}

	sBegin, sEnd, err := lineSpan(r.StartLine)
	if err != nil {
		return 0, 0, err
	}
	start := sBegin
	if r.StartCol > 0 {
		start = min(sBegin+r.StartCol-1, sEnd)
	} else {
		// skip indentation so whole-line selections start at code
		start += len(src[sBegin:sEnd]) - len(bytes.TrimLeft(src[sBegin:sEnd], " \t"))
	}

	eBegin, eEnd, err := lineSpan(r.EndLine)
	if err != nil {
		return 0, 0, err
	}
	end := eEnd
	if r.EndCol > 0 {
		end = min(eBegin+r.EndCol-1, eEnd)
	}
	if end < start {
		return 0, 0, fmt.Errorf("empty selection %s", r)
	}
	return start, end, nil
}
