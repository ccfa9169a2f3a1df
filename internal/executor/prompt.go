package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

const systemAddendum = `You are running unattended as a scheduled automation. No human is watching this session.

Rules:
1. Never request interactive input, permission, or clarification. Make reasonable decisions and proceed.
2. Do the work described in the prompt, then write a short summary of what you found or changed.
3. End your response with exactly one line in this form:
   Actionable: yes
   or
   Actionable: no
   Use "no" only when there is genuinely nothing for a human to review or act on.`

// BuildSystemPrompt composes the unattended-run addendum, appending the
// automation's persistent memory file when one exists
func BuildSystemPrompt(memory string) string {
	if memory == "" {
		return systemAddendum
	}
	return systemAddendum + "\n\nMemory from previous runs:\n" + memory
}

// ReadMemory loads the per-automation memory file. A missing file is not an
// error; it reads as empty. The engine never writes this file, the agent
// session does.
func ReadMemory(memoryDir, automationID string) string {
	if memoryDir == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(memoryDir, automationID+".md"))
	if err != nil {
		return ""
	}
	return string(data)
}

// summaryCap bounds persisted summaries
const summaryCap = 2000

// TruncateSummary caps s at summaryCap characters with a trailing ellipsis
func TruncateSummary(s string) string {
	if utf8.RuneCountInString(s) <= summaryCap {
		return s
	}
	runes := []rune(s)
	return string(runes[:summaryCap]) + "…"
}

// ParseActionable extracts the trailing actionability marker from the
// accumulated assistant text. The default is actionable: an absent or
// malformed marker fails toward requiring human review.
func ParseActionable(text string) bool {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if !strings.HasPrefix(lower, "actionable:") {
			continue
		}
		switch strings.TrimSpace(strings.TrimPrefix(lower, "actionable:")) {
		case "no", "false":
			return false
		case "yes", "true":
			return true
		}
		return true
	}
	return true
}

// WorktreeName derives the deterministic isolation-worktree name for an
// automation fire
func WorktreeName(automationID string, unix int64) string {
	return fmt.Sprintf("automation-%s-%d", automationID, unix)
}

// BranchName is the advisory branch convention for runs that changed files
// inside a worktree
func BranchName(automationID string) string {
	return "automation/" + automationID
}
