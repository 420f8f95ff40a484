/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evidence

import "strings"

// Event type classification is deliberately loose: adapters normalize
// when they can, and these helpers absorb the long tail of source
// vocabularies ("tool_use" vs "tool_call" vs "function_call").

// IsToolCall reports whether an event type indicates a tool invocation
// starting.
func IsToolCall(eventType string) bool {
	t := strings.ToLower(eventType)
	if strings.Contains(t, "result") || strings.Contains(t, "response") {
		return false
	}
	return strings.Contains(t, "tool_call") ||
		strings.Contains(t, "tool_use") ||
		strings.Contains(t, "function_call") ||
		t == "tool_start" || t == "call"
}

// IsToolResult reports whether an event type indicates a tool
// invocation finishing.
func IsToolResult(eventType string) bool {
	t := strings.ToLower(eventType)
	return strings.Contains(t, "tool_result") ||
		strings.Contains(t, "tool_response") ||
		strings.Contains(t, "function_result") ||
		t == "tool_end" || t == "tool_output"
}

// IsUserMessage reports whether an event type indicates user or task
// input to the agent.
func IsUserMessage(eventType string) bool {
	t := strings.ToLower(eventType)
	return t == "user" || t == "human" || t == "task" ||
		strings.Contains(t, "user_message") ||
		strings.Contains(t, "message") && strings.Contains(t, "user")
}

// IsErrorType reports whether an event type indicates a failure.
func IsErrorType(eventType string) bool {
	t := strings.ToLower(eventType)
	return strings.Contains(t, "error") || strings.Contains(t, "failure") ||
		strings.Contains(t, "exception")
}

// IsFinalOutput reports whether an event type plausibly carries the
// agent's final answer.
func IsFinalOutput(eventType string) bool {
	t := strings.ToLower(eventType)
	return t == "assistant" || t == "output" || t == "result" ||
		t == "final" || strings.Contains(t, "completion")
}
