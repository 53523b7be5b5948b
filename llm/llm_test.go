package llm

import "testing"

func TestUsageDefaultsToZero(t *testing.T) {
	u := Usage{}
	if u.TotalTokens != 0 || u.InputTokens != 0 || u.OutputTokens != 0 {
		t.Errorf("expected zero usage, got %+v", u)
	}
}

func TestRoleConstants(t *testing.T) {
	if RoleSystem != "system" || RoleUser != "user" || RoleAssistant != "assistant" {
		t.Errorf("unexpected role constants: %q %q %q", RoleSystem, RoleUser, RoleAssistant)
	}
}
