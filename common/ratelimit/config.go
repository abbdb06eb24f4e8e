package ratelimit

// TierConfig is the admission budget for one workflow tier.
type TierConfig struct {
	Limit         int64
	WindowSeconds int
}

// DefaultTierConfigs maps each tier to its budget. Model calls are the
// expensive part of a run, so heavier tiers get steeper cuts.
var DefaultTierConfigs = map[WorkflowTier]TierConfig{
	TierSimple:   {Limit: 100, WindowSeconds: 60},
	TierStandard: {Limit: 20, WindowSeconds: 60},
	TierHeavy:    {Limit: 5, WindowSeconds: 60},
}

// GlobalConfig is the service-wide request ceiling across all users.
type GlobalConfig struct {
	Limit         int64
	WindowSeconds int
}

// DefaultGlobalConfig bounds total request volume per minute.
var DefaultGlobalConfig = GlobalConfig{
	Limit:         100,
	WindowSeconds: 60,
}

// UserConfig is the per-user request budget applied by the HTTP
// middleware, before any run is admitted.
type UserConfig struct {
	Limit         int64
	WindowSeconds int
}

// DefaultUserConfig bounds one user's API traffic per minute.
var DefaultUserConfig = UserConfig{
	Limit:         30,
	WindowSeconds: 60,
}

// tierConfigFor resolves a tier's budget. Unknown tiers get the heavy
// budget so a bad tier label cannot widen anyone's allowance.
func tierConfigFor(tier WorkflowTier) TierConfig {
	if cfg, ok := DefaultTierConfigs[tier]; ok {
		return cfg
	}
	return DefaultTierConfigs[TierHeavy]
}

// GetLimitForTier returns the run budget for a tier.
func GetLimitForTier(tier WorkflowTier) int64 {
	return tierConfigFor(tier).Limit
}

// GetWindowForTier returns the window length for a tier.
func GetWindowForTier(tier WorkflowTier) int {
	return tierConfigFor(tier).WindowSeconds
}
