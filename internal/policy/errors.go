package policy

import "github.com/indubitably-ai/agentcore/internal/toolerr"

// SandboxViolation builds the fatal error a blocked command or out-of-bounds
// write target produces (spec §4.H: "Sandbox violations are Fatal").
func SandboxViolation(format string, args ...interface{}) *toolerr.Error {
	return toolerr.Newf(toolerr.Sandbox, format, args...)
}

// Denied builds the RespondToModel error a declined approval produces (spec
// §4.H: "A denied approval returns RespondToModel(\"denied by user\")").
func Denied(format string, args ...interface{}) *toolerr.Error {
	return toolerr.PermissionErr(format, args...)
}
