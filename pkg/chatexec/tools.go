package chatexec

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mcpjam/hosted-gateway/pkg/apierrors"
	"github.com/mcpjam/hosted-gateway/pkg/logger"
	"github.com/mcpjam/hosted-gateway/pkg/mcpsession"
	"github.com/mcpjam/hosted-gateway/pkg/sessionmanager"
)

// toolNamePattern is the cross-model tool-name constraint: the strictest
// common denominator across supported model families, applied uniformly so
// a tool set valid for one model is valid for all.
var toolNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// boundTool ties a tool name the model may call back to where it executes:
// a backend MCP server's session, or the built-in skill set when ServerID
// is empty.
type boundTool struct {
	ServerID      string
	NeedsApproval bool
}

// toolSet is the merged tool table for one chat request.
type toolSet struct {
	bindings map[string]boundTool
	schemas  []ToolSchema
}

// collectTools awaits the manager's in-flight handshakes for every selected
// server, lists each server's tools, and merges them with the built-in
// skill tools. requireApproval marks every MCP tool (never skill tools) as
// needing caller approval before execution. A tool name collision between
// two servers keeps the first binding and logs the shadowed one.
func collectTools(
	ctx context.Context,
	mgr *sessionmanager.Manager,
	servers []serverBinding,
	requireApproval bool,
) (*toolSet, error) {
	ts := &toolSet{bindings: make(map[string]boundTool)}

	for _, binding := range servers {
		session, err := mgr.EnsureConnected(ctx, binding.ID, binding.URL, binding.Options...)
		if err != nil {
			return nil, err
		}
		tools, err := session.ListTools(ctx)
		if err != nil {
			return nil, err
		}
		for _, tool := range tools {
			if _, exists := ts.bindings[tool.Name]; exists {
				logger.Warnw("duplicate tool name across servers, keeping first",
					"tool", tool.Name, "shadowed_server", binding.ID)
				continue
			}
			ts.bindings[tool.Name] = boundTool{ServerID: binding.ID, NeedsApproval: requireApproval}
			ts.schemas = append(ts.schemas, ToolSchema{
				Name:        tool.Name,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			})
		}
	}

	for _, skill := range skillTools {
		if _, exists := ts.bindings[skill.Name]; exists {
			logger.Warnw("server tool shadows built-in skill tool", "tool", skill.Name)
			continue
		}
		ts.bindings[skill.Name] = boundTool{}
		ts.schemas = append(ts.schemas, ToolSchema{
			Name:        skill.Name,
			Description: skill.Description,
			InputSchema: skill.InputSchema,
		})
	}

	return ts, nil
}

// validateToolNames rejects the tool set when any name violates the model
// tool-name constraints, listing every offender in one error.
func validateToolNames(ts *toolSet) error {
	var offenders []string
	for name := range ts.bindings {
		if !toolNamePattern.MatchString(name) {
			offenders = append(offenders, name)
		}
	}
	if len(offenders) > 0 {
		sort.Strings(offenders)
		return apierrors.NewValidationError(
			fmt.Sprintf("tool names not usable with the selected model: %s", strings.Join(offenders, ", ")), nil)
	}
	return nil
}

// serverBinding is one authorized server the chat may route tool calls to.
type serverBinding struct {
	ID      string
	URL     string
	Options []mcpsession.Option
}
