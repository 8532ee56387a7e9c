package main

import (
	"os/exec"
	"strings"
)

// GitRevision identifies the analysed source tree.
type GitRevision struct {
	Commit string `json:"commit"` // full SHA
	Short  string `json:"short"`  // 12-character SHA
	Branch string `json:"branch,omitempty"`
	Author string `json:"author,omitempty"`
	Date   string `json:"date,omitempty"` // ISO 8601
	Dirty  bool   `json:"dirty"`          // uncommitted changes under dir
}

// ReadGitRevision describes HEAD of the repository containing dir. It
// returns nil when dir is not in a git work tree or git is unavailable.
func ReadGitRevision(dir string, prog *Progress) *GitRevision {
	out, err := gitOutput(dir, "log", "-1", "--format=%H %aI %aN")
	if err != nil {
		prog.Verbose("Git revision for %s: failed: %v", dir, err)
		return nil
	}
	rev, ok := parseLogHeader(out)
	if !ok {
		prog.Verbose("Git revision for %s: unexpected log output %q", dir, out)
		return nil
	}

	if branch, err := gitOutput(dir, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && branch != "HEAD" {
		rev.Branch = branch
	}
	// Only changes under dir matter, not the rest of a monorepo.
	if status, err := gitOutput(dir, "status", "--porcelain", "--", "."); err == nil {
		rev.Dirty = status != ""
	}

	prog.Log("Git revision: %s (%s)%s", rev.Short, rev.Date, dirtySuffix(rev.Dirty))
	return rev
}

func gitOutput(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// parseLogHeader parses "<sha> <date> <author name>".
func parseLogHeader(line string) (*GitRevision, bool) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 || len(parts[0]) < 12 {
		return nil, false
	}
	rev := &GitRevision{Commit: parts[0], Short: parts[0][:12], Date: parts[1]}
	if len(parts) == 3 {
		rev.Author = parts[2]
	}
	return rev, true
}

func dirtySuffix(dirty bool) string {
	if dirty {
		return " +dirty"
	}
	return ""
}
