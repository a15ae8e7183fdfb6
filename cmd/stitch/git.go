package main

import (
	"bytes"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"
)

var errUncommittedChanges = errors.New("aborted, the project has uncommitted changes (use --force to continue anyway)")

// checkGitClean refuses to continue when git reports changes under dir.
// Directories outside any repository, or machines without git, are let
// through with a warning.
func checkGitClean(dir string, logger *log.Logger) error {
	statusCmd := exec.Command("git", "status", "--porcelain", "--", ".")
	statusCmd.Dir = dir
	var stderr bytes.Buffer
	statusCmd.Stderr = &stderr
	out, err := statusCmd.Output()
	if err != nil {
		logger.Warn("could not check git status", "dir", dir, "err", err, "stderr", strings.TrimSpace(stderr.String()))
		return nil
	}
	if len(bytes.TrimSpace(out)) != 0 {
		changed := strings.Count(strings.TrimSpace(string(out)), "\n") + 1
		return fmt.Errorf("%w: %d changed paths", errUncommittedChanges, changed)
	}
	return nil
}
