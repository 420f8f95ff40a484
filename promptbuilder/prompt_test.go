/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package promptbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildWithLiteralAndJSON(t *testing.T) {
	p, err := NewPrompt("You are {{role}}.\n\nEvidence:\n{{evidence}}")
	require.NoError(t, err)
	assert.Len(t, p.Bindings(), 2)

	p, err = p.BindStringLiteral("role", "a strict evaluator")
	require.NoError(t, err)
	p, err = p.BindJSON("evidence", map[string]any{"task": "fix the bug"})
	require.NoError(t, err)

	out, err := p.Build()
	require.NoError(t, err)
	assert.Contains(t, out, "a strict evaluator")
	assert.Contains(t, out, `"task": "fix the bug"`)
}

func TestBuildUnboundPlaceholder(t *testing.T) {
	p := MustNewPrompt("score {{packet}} against {{rubric}}")

	p, err := p.BindJSON("packet", map[string]any{})
	require.NoError(t, err)

	_, err = p.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unbound placeholder: rubric")
}

func TestBindUnknownName(t *testing.T) {
	p := MustNewPrompt("hello {{name}}")

	_, err := p.BindStringLiteral("nmae", "world")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found in template")
}

func TestBindTwice(t *testing.T) {
	p := MustNewPrompt("hello {{name}}")

	p, err := p.BindStringLiteral("name", "world")
	require.NoError(t, err)

	_, err = p.BindStringLiteral("name", "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already bound")
}

func TestBindDoesNotMutateBase(t *testing.T) {
	base := MustNewPrompt("judge {{packet}}")

	a, err := base.BindJSON("packet", map[string]any{"run": "a"})
	require.NoError(t, err)
	b, err := base.BindJSON("packet", map[string]any{"run": "b"})
	require.NoError(t, err)

	outA, err := a.Build()
	require.NoError(t, err)
	outB, err := b.Build()
	require.NoError(t, err)
	assert.Contains(t, outA, `"run": "a"`)
	assert.Contains(t, outB, `"run": "b"`)
}

func TestBindYAML(t *testing.T) {
	p := MustNewPrompt("rubric:\n{{rubric}}")

	p, err := p.BindYAML("rubric", map[string]any{"dimension": "accuracy"})
	require.NoError(t, err)

	out, err := p.Build()
	require.NoError(t, err)
	assert.Contains(t, out, "dimension: accuracy")
}

func TestWalkTemplateErrors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		wantErr  string
	}{{
		name:     "unclosed binding",
		template: "hello {{name",
		wantErr:  "unclosed binding",
	}, {
		name:     "invalid identifier",
		template: "hello {{1name}}",
		wantErr:  "invalid binding identifier",
	}, {
		name:     "empty identifier",
		template: "hello {{}}",
		wantErr:  "invalid binding identifier",
	}}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewPrompt(stringLiteral(test.template))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestBuildPreservesSurroundingText(t *testing.T) {
	p := MustNewPrompt("a {{x}} b {{y}} c")

	p, err := p.BindStringLiteral("x", "1")
	require.NoError(t, err)
	p, err = p.BindStringLiteral("y", "2")
	require.NoError(t, err)

	out, err := p.Build()
	require.NoError(t, err)
	assert.Equal(t, "a 1 b 2 c", out)
	assert.False(t, strings.Contains(out, "{{"))
}
