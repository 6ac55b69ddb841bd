package entitlement

import "testing"

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		hasAccess  bool
		onboarded  bool
		wantAllow  bool
		wantWall   bool
		wantOnbDue bool
	}{
		{"access during onboarding", true, false, true, false, true},
		{"access after onboarding", true, true, true, false, false},
		{"no access during onboarding suppresses paywall", false, false, false, false, true},
		{"no access after onboarding shows paywall", false, true, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(ReconciledEntitlement{HasAccess: tt.hasAccess}, tt.onboarded)
			if d.Allow != tt.wantAllow {
				t.Fatalf("allow=%t, want %t", d.Allow, tt.wantAllow)
			}
			if d.ShowPaywall != tt.wantWall {
				t.Fatalf("showPaywall=%t, want %t", d.ShowPaywall, tt.wantWall)
			}
			if d.OnboardingDue != tt.wantOnbDue {
				t.Fatalf("onboardingDue=%t, want %t", d.OnboardingDue, tt.wantOnbDue)
			}
		})
	}
}
