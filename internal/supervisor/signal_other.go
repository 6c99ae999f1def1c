//go:build !unix

package supervisor

import "os/exec"

// extractSignal has no portable equivalent outside unix; ExitCode() == -1
// is still reported as StatusSignal, just without a signal number.
func extractSignal(*exec.ExitError) int {
	return 0
}
