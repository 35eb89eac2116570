// Package builtin provides small reference tools for the CLI and gateway.
package builtin

import (
	"github.com/liteclaw/unillm/pkg/tools"
)

// Registry returns a registry holding every built-in tool. File tools are
// confined to root; an empty root means the working directory.
func Registry(root string) *tools.Registry {
	return tools.NewRegistry(
		NewTimeTool(),
		NewReadTool(root),
		NewListTool(root),
	)
}
