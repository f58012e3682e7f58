package m3u

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

const (
	maxLineSize = 1 << 20 // 1 MiB per line

	tagPrefix = "#"
	tagInfo   = "#EXTINF:"
	tagOption = "#EXTVLCOPT:"
	tagGroup  = "#EXTGRP:"
)

// SyntaxError describes a fragment the parser had to abandon.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return "line " + strconv.Itoa(e.Line) + ": " + e.Msg
}

// Parse extracts every complete entry block from text in source order.
// Malformed fragments are skipped; an empty result is not an error. Parsing
// stops at a line longer than 1 MiB; use ParseStrict to see that error.
func Parse(text string) []Channel {
	channels, _ := parse(strings.NewReader(text), nil)
	return channels
}

// ParseStrict parses like Parse but also returns every abandoned fragment,
// joined into a single error of *SyntaxError values. A read error that
// stopped parsing is joined last and is not a *SyntaxError.
func ParseStrict(text string) ([]Channel, error) {
	var errs []error
	channels, err := parse(strings.NewReader(text), &errs)
	if err != nil {
		errs = append(errs, err)
	}
	return channels, errors.Join(errs...)
}

// ParseReader parses a playlist from r. Only read errors are returned.
func ParseReader(r io.Reader) ([]Channel, error) {
	return parse(r, nil)
}

// ParseFile reads and parses the playlist at path.
func ParseFile(path string) ([]Channel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open playlist: %w", err)
	}
	defer f.Close()
	channels, err := parse(f, nil)
	if err != nil {
		return nil, fmt.Errorf("read playlist %s: %w", path, err)
	}
	return channels, nil
}

// block is an entry whose #EXTINF line was seen but whose URL was not.
type block struct {
	line      int
	ch        Channel
	rawGroup  string
	hasOption bool
	hasGroup  bool
}

func parse(r io.Reader, errs *[]error) ([]Channel, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(nil, maxLineSize)

	report := func(line int, format string, args ...any) {
		if errs != nil {
			*errs = append(*errs, &SyntaxError{Line: line, Msg: fmt.Sprintf(format, args...)})
		}
	}

	var (
		channels []Channel
		cur      *block
		lineNum  int
	)
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, tagInfo):
			if cur != nil {
				report(cur.line, "#EXTINF without URL")
			}
			cur = nil
			ch, err := parseInfo(line[len(tagInfo):])
			if err != nil {
				report(lineNum, "%v", err)
				continue
			}
			cur = &block{line: lineNum, ch: ch}

		case cur == nil:
			if !strings.HasPrefix(line, tagPrefix) {
				report(lineNum, "URL without preceding #EXTINF")
			}

		case strings.HasPrefix(line, tagOption) && !cur.hasOption && !cur.hasGroup:
			cur.ch.Option = line[len(tagOption):]
			cur.hasOption = true

		case strings.HasPrefix(line, tagGroup) && !cur.hasGroup:
			cur.rawGroup = strings.TrimSpace(line[len(tagGroup):])
			cur.hasGroup = true

		case strings.HasPrefix(line, tagPrefix):
			// A tag where the URL belongs: the block is truncated.
			report(cur.line, "unexpected %q before URL", line)
			cur = nil

		default:
			cur.ch.URL = line
			cur.ch.Category = resolveCategory(cur.rawGroup, cur.ch.Attributes)
			channels = append(channels, cur.ch)
			cur = nil
		}
	}
	if cur != nil {
		report(cur.line, "#EXTINF without URL")
	}
	return channels, sc.Err()
}

// parseInfo parses the payload of an #EXTINF line:
// <signed integer>[<attributes>],<channel name>
func parseInfo(payload string) (Channel, error) {
	end := 0
	if end < len(payload) && payload[end] == '-' {
		end++
	}
	digits := end
	for end < len(payload) && payload[end] >= '0' && payload[end] <= '9' {
		end++
	}
	if end == digits {
		return Channel{}, errors.New("#EXTINF without sequence number")
	}
	seq, err := strconv.Atoi(payload[:end])
	if err != nil {
		return Channel{}, fmt.Errorf("#EXTINF sequence number: %w", err)
	}
	rest := payload[end:]
	comma := titleComma(rest)
	if comma < 0 {
		// Unbalanced quotes: take the last comma as the title separator.
		comma = strings.LastIndexByte(rest, ',')
	}
	if comma < 0 {
		return Channel{}, errors.New("#EXTINF without channel name")
	}
	name := strings.TrimSpace(rest[comma+1:])
	if name == "" {
		return Channel{}, errors.New("#EXTINF with empty channel name")
	}
	var attrs *Attrs
	if raw := rest[:comma]; raw != "" {
		attrs = ParseParams(&raw)
	} else {
		attrs = ParseParams(nil)
	}
	return Channel{Name: name, SequenceID: seq, Attributes: attrs}, nil
}

// titleComma returns the index of the first comma outside double quotes.
func titleComma(s string) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				return i
			}
		}
	}
	return -1
}
