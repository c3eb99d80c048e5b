//go:build !unix

package extractor

import "os/exec"

// killGroupOnCancel keeps the default cancellation, which kills the direct child only
func killGroupOnCancel(cmd *exec.Cmd) {}
