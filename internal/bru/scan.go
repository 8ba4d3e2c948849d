// Package bru is the default structural parser for collection files. A file
// is a sequence of blocks. A block opens with "<tag> {" on its own line and
// closes with "}" alone at column zero. Dictionary blocks hold "key: value"
// lines, with a leading "~" marking a disabled entry. Text blocks hold free
// text indented by two spaces. "vars:secret [" opens a list block closed by
// "]".
package bru

import (
	"fmt"
	"strings"

	"github.com/conneroisu/bruwatch/internal/errors"
)

const indent = "  "

type block struct {
	tag   string
	line  int
	lines []string
}

// textBlocks are blocks whose content is free text.
var textBlocks = map[string]bool{
	"body":                 true,
	"body:json":            true,
	"body:text":            true,
	"body:xml":             true,
	"body:sparql":          true,
	"body:graphql":         true,
	"body:graphql:vars":    true,
	"script:pre-request":   true,
	"script:post-response": true,
	"tests":                true,
	"docs":                 true,
	"example":              true,
}

func parseError(line int, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if line > 0 {
		msg = fmt.Sprintf("line %d: %s", line, msg)
	}
	return errors.NewParseError(errors.ErrCodeParseFailed, msg, nil)
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// header parses a block header line into its tag and closing token.
func header(line string) (tag, closing string, empty, ok bool) {
	line = strings.TrimRight(line, " \t")
	switch {
	case strings.HasSuffix(line, "{}"):
		tag, empty = strings.TrimSpace(strings.TrimSuffix(line, "{}")), true
	case strings.HasSuffix(line, "{"):
		tag, closing = strings.TrimSpace(strings.TrimSuffix(line, "{")), "}"
	case strings.HasSuffix(line, "["):
		tag, closing = strings.TrimSpace(strings.TrimSuffix(line, "[")), "]"
	default:
		return "", "", false, false
	}
	if tag == "" || strings.ContainsAny(tag, " \t") || line[0] == ' ' || line[0] == '\t' {
		return "", "", false, false
	}
	return tag, closing, empty, true
}

// scan splits text into blocks.
func scan(text string) ([]block, error) {
	lines := splitLines(text)
	var blocks []block

	for i := 0; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		tag, closing, empty, ok := header(lines[i])
		if !ok {
			return nil, parseError(i+1, "expected a block header, got %q", strings.TrimSpace(lines[i]))
		}

		b := block{tag: tag, line: i + 1}
		if empty {
			blocks = append(blocks, b)
			continue
		}

		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimRight(lines[j], " \t") == closing {
				break
			}
			b.lines = append(b.lines, lines[j])
		}
		if j == len(lines) {
			return nil, parseError(i+1, "block %q is not closed", tag)
		}
		blocks = append(blocks, b)
		i = j
	}
	return blocks, nil
}

// outdent strips one level of indentation from every line and joins them.
// Blank lines before the first content line are dropped.
func outdent(lines []string) string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	out := make([]string, 0, len(lines)-start)
	for _, l := range lines[start:] {
		out = append(out, strings.TrimPrefix(l, indent))
	}
	return strings.Join(out, "\n")
}

type pair struct {
	key     string
	value   string
	enabled bool
}

// pairs parses the lines of a dictionary block.
func (b block) pairs() ([]pair, error) {
	var out []pair
	for n, raw := range b.lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		key, value, ok := splitPair(line)
		if !ok {
			return nil, parseError(b.line+n+1, "expected \"key: value\" in %q block", b.tag)
		}

		p := pair{key: key, value: value, enabled: true}
		if strings.HasPrefix(p.key, "~") {
			p.key = p.key[1:]
			p.enabled = false
		}
		p.key = unquote(p.key)
		out = append(out, p)
	}
	return out, nil
}

func splitPair(line string) (string, string, bool) {
	start := 0
	if strings.HasPrefix(line, "~") {
		start = 1
	}
	if strings.HasPrefix(line[start:], `"`) {
		end := strings.Index(line[start+1:], `"`)
		if end >= 0 {
			start += end + 2
		}
	}
	idx := strings.Index(line[start:], ":")
	if idx < 0 {
		return "", "", false
	}
	idx += start
	key := strings.TrimSpace(line[:idx])
	if key == "" || key == "~" {
		return "", "", false
	}
	return key, strings.TrimSpace(line[idx+1:]), true
}

func unquote(key string) string {
	if len(key) >= 2 && strings.HasPrefix(key, `"`) && strings.HasSuffix(key, `"`) {
		return key[1 : len(key)-1]
	}
	return key
}

// dict returns the block's pairs as a map, keeping the last value of a key.
func (b block) dict() (map[string]string, error) {
	ps, err := b.pairs()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.key] = p.value
	}
	return m, nil
}

// list parses the names of a list block, separated by commas or newlines.
func (b block) list() []pair {
	var out []pair
	for _, raw := range b.lines {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			p := pair{key: name, enabled: true}
			if strings.HasPrefix(name, "~") {
				p.key = name[1:]
				p.enabled = false
			}
			out = append(out, p)
		}
	}
	return out
}

func (b block) text() string {
	return outdent(b.lines)
}
