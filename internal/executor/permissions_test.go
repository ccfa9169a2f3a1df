package executor

import (
	"testing"

	"github.com/agentdeck/autopilot/internal/domain"
)

func TestBuildRulesetDeniesInteractivePrompts(t *testing.T) {
	// Unattended runs must never block on human input, whatever the preset.
	for _, preset := range []domain.PermissionPreset{
		domain.PresetDefault,
		domain.PresetAllowAll,
		domain.PresetReadOnly,
	} {
		rules := BuildRuleset(preset)
		for _, cap := range []string{capQuestion, capPlanEnter, capPlanExit} {
			if got := ResolveCapability(rules, cap); got != actionDeny {
				t.Errorf("preset %q: capability %q resolved to %q, want deny", preset, cap, got)
			}
		}
	}
}

func TestBuildRulesetPresets(t *testing.T) {
	tests := []struct {
		preset     domain.PermissionPreset
		capability string
		want       string
	}{
		{domain.PresetDefault, capEdit, actionAllow},
		{domain.PresetDefault, capBash, actionAllow},
		{domain.PresetAllowAll, capEdit, actionAllow},
		{domain.PresetAllowAll, capExternalDir, actionAllow},
		{domain.PresetReadOnly, capEdit, actionDeny},
		{domain.PresetReadOnly, capBash, actionDeny},
		{domain.PresetReadOnly, capWebfetch, actionAllow},
		// Unrecognized presets fall back to the default base rules.
		{domain.PermissionPreset("bogus"), capEdit, actionAllow},
	}
	for _, tt := range tests {
		rules := BuildRuleset(tt.preset)
		if got := ResolveCapability(rules, tt.capability); got != tt.want {
			t.Errorf("preset %q capability %q: got %q, want %q", tt.preset, tt.capability, got, tt.want)
		}
	}
}

func TestResolveCapabilityLastMatchWins(t *testing.T) {
	rules := BuildRuleset(domain.PresetReadOnly)
	// The base "*" allow comes first; the later explicit deny must win.
	if got := ResolveCapability(rules, capBash); got != actionDeny {
		t.Errorf("got %q, want deny for bash under read-only", got)
	}
}

func TestResolveCapabilityDefaultDeny(t *testing.T) {
	if got := ResolveCapability(nil, capEdit); got != actionDeny {
		t.Errorf("got %q, want deny with empty ruleset", got)
	}
}
