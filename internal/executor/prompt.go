package executor

import (
	"fmt"
	"strings"
)

const resultContract = "Respond with a single JSON object: " +
	`{"status": "success"|"failed"|"skipped", "summary": "<non-empty string>", "errors": [{"code": "...", "message": "..."}]}` +
	". Wrap it in a fenced ```json block if your response contains any other text."

// scheduledTaskPrompt builds the prompt for a generic scheduled task run.
func scheduledTaskPrompt(jobID string, payload *string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Scheduled Task — %s\n\n", jobID)
	b.WriteString("Execute the task described below.\n\n")
	if payload != nil && strings.TrimSpace(*payload) != "" {
		b.WriteString("## Task payload\n\n```json\n")
		b.WriteString(strings.TrimSpace(*payload))
		b.WriteString("\n```\n\n")
	}
	b.WriteString(resultContract)
	return b.String()
}

// backgroundPrompt builds the prompt for an interactive background one-shot
// run from its validated payload.
func backgroundPrompt(payload InteractiveBackgroundPayload) string {
	var b strings.Builder
	b.WriteString("# Background Run\n\n")
	b.WriteString("A user requested background work from an interactive session. Complete it and report back.\n\n")
	fmt.Fprintf(&b, "## Request\n\n%s\n\n", payload.Request.Text)
	if payload.Request.Rationale != nil && *payload.Request.Rationale != "" {
		fmt.Fprintf(&b, "## Rationale\n\n%s\n\n", *payload.Request.Rationale)
	}
	b.WriteString(resultContract)
	return b.String()
}
