package bru

import (
	"strings"

	"github.com/conneroisu/bruwatch/internal/types"
)

// redactable maps body block tags to the body field they fill.
var redactable = map[string]string{
	"body:json":    types.BodyJSON,
	"body:text":    types.BodyText,
	"body:xml":     types.BodyXML,
	"body:sparql":  types.BodySparql,
	"body:graphql": types.BodyGraphQL,
}

// RedactBody removes the content of every free-text body block from text.
// The skeleton keeps the emptied blocks so that block order is unchanged;
// extracted maps body modes to the raw block content.
func (p *Parser) RedactBody(text string) (string, map[string]string, error) {
	lines := splitLines(text)
	extracted := make(map[string]string)

	var sb strings.Builder
	sb.Grow(len(text) / 4)

	for i := 0; i < len(lines); i++ {
		tag, closing, _, ok := header(lines[i])
		mode, redact := redactable[tag]
		if !ok || !redact || closing != "}" {
			sb.WriteString(lines[i])
			if i < len(lines)-1 {
				sb.WriteByte('\n')
			}
			continue
		}

		j := i + 1
		for ; j < len(lines); j++ {
			if strings.TrimRight(lines[j], " \t") == "}" {
				break
			}
		}
		if j == len(lines) {
			return "", nil, parseError(i+1, "block %q is not closed", tag)
		}

		extracted[mode] = strings.Join(lines[i+1:j], "\n")
		sb.WriteString(tag)
		sb.WriteString(" {\n}")
		if j < len(lines)-1 {
			sb.WriteByte('\n')
		}
		i = j
	}
	return sb.String(), extracted, nil
}

// Reassemble parses a skeleton produced by RedactBody and restores the
// extracted body blocks into their fields.
func (p *Parser) Reassemble(skeleton string, extracted map[string]string) (*types.Request, error) {
	req, err := p.ParseRequest(skeleton)
	if err != nil {
		return nil, err
	}
	for mode, raw := range extracted {
		req.Request.Body.SetField(mode, outdent(strings.Split(raw, "\n")))
	}
	return req, nil
}

// ParseRedacted runs RedactBody then Reassemble.
func (p *Parser) ParseRedacted(text string) (*types.Request, error) {
	skeleton, extracted, err := p.RedactBody(text)
	if err != nil {
		return nil, err
	}
	return p.Reassemble(skeleton, extracted)
}
