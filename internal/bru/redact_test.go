package bru

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/bruwatch/internal/types"
)

func TestRedactBody(t *testing.T) {
	p := New()

	skeleton, extracted, err := p.RedactBody(sampleRequest)
	require.NoError(t, err)

	assert.NotContains(t, skeleton, `"nested"`)
	assert.NotContains(t, skeleton, "<user>")
	assert.Contains(t, skeleton, "body:json {\n}")
	assert.Contains(t, skeleton, "body:graphql:vars {")
	assert.Len(t, extracted, 5)
	assert.Contains(t, extracted[types.BodyJSON], `"nested"`)
}

// largeBody returns a JSON body block of roughly n bytes.
func largeBody(n int) string {
	var sb strings.Builder
	sb.WriteString("  {\n    \"items\": [\n")
	for sb.Len() < n {
		sb.WriteString("      {\"id\": 1, \"text\": \"lorem ipsum dolor sit amet }\"},\n")
	}
	sb.WriteString("      {}\n    ]\n  }")
	return sb.String()
}

func TestRedactedParseMatchesFullParse(t *testing.T) {
	big := strings.Replace(sampleRequest, "  plain text", largeBody(3<<20), 1)
	p := New()

	full, err := p.ParseRequest(big)
	require.NoError(t, err)

	redacted, err := p.ParseRedacted(big)
	require.NoError(t, err)

	for _, mode := range []string{types.BodyJSON, types.BodyText, types.BodyXML, types.BodySparql, types.BodyGraphQL} {
		assert.Equal(t, full.Request.Body.Field(mode), redacted.Request.Body.Field(mode), mode)
	}
	assert.Equal(t, full, redacted)
}

func TestReassembleWithoutBodies(t *testing.T) {
	text := "meta {\n  name: bare\n}\n\nget {\n  url: http://x\n}\n"
	p := New()

	skeleton, extracted, err := p.RedactBody(text)
	require.NoError(t, err)
	assert.Empty(t, extracted)
	assert.Equal(t, text, skeleton)

	req, err := p.Reassemble(skeleton, extracted)
	require.NoError(t, err)
	assert.Equal(t, "bare", req.Name)
}

func TestRedactUnclosedBody(t *testing.T) {
	_, _, err := New().RedactBody("body:json {\n  {}\n")
	assert.Error(t, err)
}
