package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderMessage(t *testing.T) {
	vars := map[string]string{
		"title": "New offer",
		"body":  "A client requested plumbing",
	}

	assert.Equal(t, "New offer: A client requested plumbing",
		RenderMessage("{{title}}: {{body}}", vars))
	assert.Equal(t, "New offer and {{missing}}",
		RenderMessage("{{ title }} and {{missing}}", vars), "unknown keys stay untouched")
	assert.Equal(t, "plain text", RenderMessage("plain text", vars))
	assert.Equal(t, "", RenderMessage("", vars))
}
