package chatexec

import (
	"time"

	"github.com/google/uuid"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
)

// SkillTool is one of the fixed, process-local tools injected into every
// chat alongside the MCP tools. Skill tools execute inside the gateway and
// never touch a backend MCP session.
type SkillTool struct {
	Name        string
	Description string
	InputSchema map[string]any
	Run         func(args map[string]any) (string, error)
}

// skillTools is the built-in set. It is fixed at process start; chats
// cannot add to or remove from it.
var skillTools = []SkillTool{
	{
		Name:        "current_time",
		Description: "Returns the current time in UTC, RFC 3339 formatted.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Run: func(map[string]any) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	},
	{
		Name:        "generate_uuid",
		Description: "Generates a random version 4 UUID.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
		Run: func(map[string]any) (string, error) {
			return uuid.NewString(), nil
		},
	},
}

// skillPromptSection is appended to the caller's system prompt whenever the
// skill tools are offered, so the model knows they run locally and need no
// approval.
const skillPromptSection = `

## Built-in tools

In addition to any connected server tools, the tools "current_time" and
"generate_uuid" are always available. They execute locally, return
immediately, and never require approval.`

// skillToolByName resolves a built-in by name.
func skillToolByName(name string) (*SkillTool, bool) {
	for i := range skillTools {
		if skillTools[i].Name == name {
			return &skillTools[i], true
		}
	}
	return nil, false
}

// runSkillTool executes a built-in and shapes its output like a tool
// result. Failures are reported as a tool error, not an HTTP error: they
// are part of the agentic loop's normal control flow.
func runSkillTool(name string, args map[string]any) (string, error) {
	tool, ok := skillToolByName(name)
	if !ok {
		return "", apierrors.NewNotFound("unknown built-in tool: "+name, nil)
	}
	return tool.Run(args)
}
