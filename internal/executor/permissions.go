package executor

import (
	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/session"
)

// Capability names the session server understands
const (
	capAll         = "*"
	capEdit        = "edit"
	capBash        = "bash"
	capWebfetch    = "webfetch"
	capExternalDir = "external-directory"
	capQuestion    = "question"
	capPlanEnter   = "plan-enter"
	capPlanExit    = "plan-exit"
)

const (
	actionAllow = "allow"
	actionDeny  = "deny"
)

// BuildRuleset maps a permission preset to an ordered rule list. Every
// preset starts from allow-everything and unconditionally denies the three
// interactive-prompt capabilities: an unattended run must never block on
// human input, and rejecting prompts reactively in the monitor would race
// an agent that is already blocked waiting.
func BuildRuleset(preset domain.PermissionPreset) []session.PermissionRule {
	rules := []session.PermissionRule{
		{Pattern: capAll, Action: actionAllow},
		{Pattern: capQuestion, Action: actionDeny},
		{Pattern: capPlanEnter, Action: actionDeny},
		{Pattern: capPlanExit, Action: actionDeny},
	}

	switch preset {
	case domain.PresetAllowAll:
		// Redundant under the allow-all base, but explicit for auditability.
		rules = append(rules,
			session.PermissionRule{Pattern: capEdit, Action: actionAllow},
			session.PermissionRule{Pattern: capBash, Action: actionAllow},
			session.PermissionRule{Pattern: capWebfetch, Action: actionAllow},
			session.PermissionRule{Pattern: capExternalDir, Action: actionAllow},
		)
	case domain.PresetReadOnly:
		rules = append(rules,
			session.PermissionRule{Pattern: capEdit, Action: actionDeny},
			session.PermissionRule{Pattern: capBash, Action: actionDeny},
		)
	}
	// PresetDefault and unrecognized presets keep the base rules.
	return rules
}

// ResolveCapability evaluates an ordered ruleset against a capability name.
// Rules are scanned front-to-back and the last matching rule wins; with no
// match the capability is denied. This mirrors the server's resolution so
// the preset mapping is testable locally.
func ResolveCapability(rules []session.PermissionRule, capability string) string {
	action := actionDeny
	for _, r := range rules {
		if r.Pattern == capAll || r.Pattern == capability {
			action = r.Action
		}
	}
	return action
}
