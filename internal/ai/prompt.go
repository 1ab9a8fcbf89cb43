package ai

import (
	"fmt"
	"strings"
)

const systemPrompt = "You extract action items from email. Reply with a single strict JSON object and nothing else."

// BuildPrompt renders the extraction instructions for an email.
func BuildPrompt(req Request) string {
	builder := &strings.Builder{}
	builder.WriteString("Analyze this email and extract all tasks, requests, deadlines, and action items.")
	if sender := strings.TrimSpace(req.Sender); sender != "" {
		fmt.Fprintf(builder, "\nEmail from: %s", sender)
	}
	builder.WriteString(`

For each task, provide:
- task_description: Clear, actionable description of what needs to be done
- assignee: Person responsible (if mentioned, otherwise "unspecified")
- deadline: Extracted deadline in ISO format (YYYY-MM-DD) or null if not specified
- priority: "high", "medium", or "low" based on context and urgency indicators
- confidence_score: Your confidence in this extraction (0.0 to 1.0)
  * 1.0 = Completely explicit and clear
  * 0.7-0.9 = Clear but may need minor clarification
  * 0.5-0.7 = Some ambiguity or missing information
  * Below 0.5 = Highly uncertain or vague
- reasoning: Brief explanation of the confidence score (what's clear, what's ambiguous)

Guidelines for confidence scoring:
- High confidence (0.8-1.0): Task is explicitly stated with clear deadline and assignee
- Medium confidence (0.5-0.7): Task is clear but deadline or assignee is implied/missing
- Low confidence (0.0-0.5): Task is vague, multiple interpretations possible, or inferred from context

Email content:
`)
	builder.WriteString(strings.TrimSpace(req.Email))
	builder.WriteString(`

Respond ONLY with valid JSON in this exact format (no markdown, no explanation):
{
  "tasks": [
    {
      "task_description": "Complete the quarterly report",
      "assignee": "John Smith",
      "deadline": "2024-03-15",
      "priority": "high",
      "confidence_score": 0.95,
      "reasoning": "Task, assignee, and deadline are all explicitly stated"
    }
  ],
  "overall_confidence": 0.85,
  "ambiguities": ["List any unclear aspects that need human review"]
}`)
	return builder.String()
}
