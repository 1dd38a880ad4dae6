package llm

import (
	"strings"

	"github.com/jonathan/apply-agent/internal/schemas"
)

// maxContentChars caps the page content embedded in a prompt.
const maxContentChars = 60000

// BuildStructuredPrompt constructs a prompt asking for a JSON answer that satisfies schema.
// content is optional page material the instruction refers to.
func BuildStructuredPrompt(instruction string, schema *schemas.Schema, content string) string {
	var sb strings.Builder

	sb.WriteString("You are assisting an automated job application agent.\n\n")
	sb.WriteString("Task:\n")
	sb.WriteString(strings.TrimSpace(instruction))
	sb.WriteString("\n\n")

	sb.WriteString("Return ONLY a JSON object named ")
	sb.WriteString(schema.Title())
	sb.WriteString(" that validates against this JSON Schema:\n")
	sb.WriteString(schema.Document)
	sb.WriteString("\n\n")

	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Base every answer on the provided material; do not invent data.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n")

	if content = strings.TrimSpace(content); content != "" {
		if len(content) > maxContentChars {
			content = content[:maxContentChars] + "\n[truncated]"
		}
		sb.WriteString("\nPage content:\n\"\"\"\n")
		sb.WriteString(content)
		sb.WriteString("\n\"\"\"\n")
	}

	return sb.String()
}
