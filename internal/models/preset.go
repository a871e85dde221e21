package models

// Profile is a bundle of risk and trailing defaults selectable by name.
type Profile struct {
	RiskFraction      float64
	MarginCapFraction float64
	Leverage          int
	ActivationR       float64
	TrailATRMultiple  float64
}

type Preset struct {
	Name        string
	Description string
	Profile     Profile
}

var Presets = map[string]Preset{
	"safe": {
		Name:        "safe",
		Description: "Low risk per trade, late trailing with a wide buffer",
		Profile: Profile{
			RiskFraction:      0.01,
			MarginCapFraction: 0.80,
			Leverage:          5,
			ActivationR:       1.5,
			TrailATRMultiple:  1.5,
		},
	},
	"mid": {
		Name:        "mid",
		Description: "Balanced risk and trailing distance",
		Profile: Profile{
			RiskFraction:      0.02,
			MarginCapFraction: 0.90,
			Leverage:          10,
			ActivationR:       1.5,
			TrailATRMultiple:  1.0,
		},
	},
	"aggr": {
		Name:        "aggr",
		Description: "Higher risk per trade, tight trailing",
		Profile: Profile{
			RiskFraction:      0.03,
			MarginCapFraction: 0.95,
			Leverage:          20,
			ActivationR:       1.5,
			TrailATRMultiple:  0.8,
		},
	},
}
