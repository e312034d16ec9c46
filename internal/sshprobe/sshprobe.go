// Package sshprobe is the opaque "SSH multiplexing probe" collaborator
// named out of scope in spec.md §1: it only needs to answer "does this ssh
// client support multiplexing, and if so what option string enables it".
package sshprobe

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
)

var versionRe = regexp.MustCompile(`OpenSSH_(\d+)\.(\d+)`)

// Result is what the probe learned about the configured ssh client.
type Result struct {
	Multiplexed bool
	// Options, when Multiplexed, are extra "-o" arguments enabling a
	// unique per-host ControlMaster/ControlPath/ControlPersist.
	Options []string
	// ControlPath is the path the options above point at, so the
	// caller can build the matching `-O exit` cleanup command.
	ControlPath string
}

// Probe runs "<sshBinary> -V" and decides whether ControlMaster
// multiplexing is available (OpenSSH >= 5.6, which is effectively every
// OpenSSH shipped since 2010). runDir is a directory that exists for the
// lifetime of the run, used to build a unique ControlPath per host.
func Probe(ctx context.Context, sshBinary, runDir, host string) Result {
	out, err := exec.CommandContext(ctx, sshBinary, "-V").CombinedOutput()
	if err != nil {
		return Result{}
	}
	m := versionRe.FindSubmatch(out)
	if m == nil {
		return Result{}
	}
	major, _ := strconv.Atoi(string(m[1]))
	minor, _ := strconv.Atoi(string(m[2]))
	if major < 5 || (major == 5 && minor < 6) {
		return Result{}
	}

	controlPath := fmt.Sprintf("%s/ssh-control-%s", runDir, sanitize(host))
	return Result{
		Multiplexed: true,
		ControlPath: controlPath,
		Options: []string{
			"-o", "ControlMaster=auto",
			"-o", "ControlPersist=600",
			"-o", "ControlPath=" + controlPath,
		},
	}
}

// CleanupArgv returns the argv that tears down the ControlMaster opened by
// Options, to be run as a best-effort shutdown-cleanup command (§9).
func CleanupArgv(sshBinary, host string, r Result) []string {
	if !r.Multiplexed {
		return nil
	}
	return []string{sshBinary, "-o", "ControlPath=" + r.ControlPath, "-O", "exit", host}
}

func sanitize(host string) string {
	out := make([]rune, 0, len(host))
	for _, r := range host {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}
