package strategy

// LegacyConfig tunes the trend-following scorer.
type LegacyConfig struct {
	MinScore     float64
	ADXThreshold float64
	// PullbackLookback is the window searched for the swing extreme a
	// pullback is measured from.
	PullbackLookback int
	StopATRMult      float64
	RewardRisk       float64
}

// BreakoutConfig tunes the RSI trendline breakout scorer.
type BreakoutConfig struct {
	MinScore float64
	// FundingLimit is the absolute funding rate, in percent, above which
	// every signal is rejected.
	FundingLimit float64
	// GeometryScale is the amplitude-percent times bars area that earns
	// the full geometry score.
	GeometryScale float64
	// OISlopeScale is the OI slope, in percent per bar, that earns the
	// full institutional score.
	OISlopeScale    float64
	VolumeSpikeMult float64
	VolumeLookback  int
	StopATRMult     float64
	RewardRisk      float64
}

// BreakoutV2Config tunes the institutional-filter breakout scorer.
type BreakoutV2Config struct {
	MinScore    float64
	StopATRMult float64
	// TargetAmplitudeMult scales the Cardwell momentum amplitude into the
	// take-profit distance.
	TargetAmplitudeMult float64
	// ZScoreCap is the OI z-score that earns the full oi_zscore component.
	ZScoreCap float64
	// RetestATRTolerance is how far, in ATRs, price may pull back through a
	// prior breakout level before the retest is considered failed.
	RetestATRTolerance float64
}

// Config groups the per-strategy settings.
type Config struct {
	Legacy     LegacyConfig
	Breakout   BreakoutConfig
	BreakoutV2 BreakoutV2Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Legacy: LegacyConfig{
			MinScore:         60,
			ADXThreshold:     20,
			PullbackLookback: 20,
			StopATRMult:      1.5,
			RewardRisk:       2,
		},
		Breakout: BreakoutConfig{
			MinScore:        50,
			FundingLimit:    0.05,
			GeometryScale:   150,
			OISlopeScale:    0.5,
			VolumeSpikeMult: 1.5,
			VolumeLookback:  20,
			StopATRMult:     1.5,
			RewardRisk:      2,
		},
		BreakoutV2: BreakoutV2Config{
			MinScore:            60,
			StopATRMult:         3,
			TargetAmplitudeMult: 1,
			ZScoreCap:           3,
			RetestATRTolerance:  0.5,
		},
	}
}
