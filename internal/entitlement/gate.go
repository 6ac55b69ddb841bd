package entitlement

// Decision is what the rest of the application consumes to allow or deny
// gated features and to decide whether to present the paywall.
type Decision struct {
	Allow         bool `json:"allow"`
	ShowPaywall   bool `json:"show_paywall"`
	OnboardingDue bool `json:"onboarding_due"`
}

// Evaluate is the access gate: a pure function over the current reconciled
// entitlement and the external onboarding-complete signal. The paywall is
// suppressed until onboarding explicitly completes.
func Evaluate(ent ReconciledEntitlement, onboardingComplete bool) Decision {
	return Decision{
		Allow:         ent.HasAccess,
		ShowPaywall:   !ent.HasAccess && onboardingComplete,
		OnboardingDue: !onboardingComplete,
	}
}
