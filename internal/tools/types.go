package tools

// Tool spec names shared across the registry, router, and CLI wiring.
const (
	ReadFileToolName  = "read_file"
	WriteFileToolName = "write_file"
	EditFileToolName  = "edit_file"
	ApplyPatchToolName = "apply_patch"
	ShellToolName     = "shell"
	GlobToolName      = "glob"
)

// AllToolNames returns the local (non-MCP) tool spec names.
func AllToolNames() []string {
	return []string{
		ReadFileToolName,
		WriteFileToolName,
		EditFileToolName,
		ApplyPatchToolName,
		ShellToolName,
		GlobToolName,
	}
}
