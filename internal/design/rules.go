// Package design holds the static background-pattern guidance the design
// worker is handed alongside each slide (§4 Design step), adapted from
// the original design_rules seed table: the source kept this catalog in
// ArangoDB so agents could query it at runtime, but ArangoDB has no
// presence anywhere else in this stack, so the same fixed catalog lives
// in Go instead of pulling in a graph database for one lookup table.
package design

// Rule is one theme+pattern combination's styling guidance.
type Rule struct {
	Theme      string
	Pattern    string
	Guidelines []string
	Intensity  map[string]float64
}

func key(theme, pattern string) string { return theme + ":" + pattern }

// DefaultRules is the seed catalog, carried over verbatim from the
// original implementation's palette/pattern guidance.
var DefaultRules = []Rule{
	{
		Theme:   "brand",
		Pattern: "gradient",
		Guidelines: []string{
			"Favor diagonal gradients to suggest motion without distraction.",
			"Keep background contrast moderate; prioritize text legibility.",
			"Use the accent color sparingly to call attention to key areas.",
		},
		Intensity: map[string]float64{"pattern": 0.4, "shapes": 0.0},
	},
	{
		Theme:   "brand",
		Pattern: "shapes",
		Guidelines: []string{
			"Use a few large translucent shapes (circles/rounded rects).",
			"Avoid intersecting shapes behind text areas.",
			"Keep accent density under 20% of the slide area.",
		},
		Intensity: map[string]float64{"pattern": 0.6, "shapes": 0.4},
	},
	{
		Theme:   "brand",
		Pattern: "grid",
		Guidelines: []string{
			"Light grids support diagrams; favor clarity over decoration.",
			"Use thin strokes with high translucency.",
			"Leave margins clean around the title area.",
		},
		Intensity: map[string]float64{"pattern": 0.3},
	},
	{
		Theme:   "brand",
		Pattern: "dots",
		Guidelines: []string{
			"Scatter dots randomly with low opacity.",
			"Avoid dot clusters behind body text.",
		},
		Intensity: map[string]float64{"pattern": 0.25},
	},
	{
		Theme:   "brand",
		Pattern: "wave",
		Guidelines: []string{
			"Use 2-3 wave bands from the bottom for balance.",
			"Keep opacity below 12% to preserve legibility.",
		},
		Intensity: map[string]float64{"pattern": 0.2},
	},
	{
		Theme:      "muted",
		Pattern:    "gradient",
		Guidelines: []string{"Softer gradients; rely more on typography contrast."},
		Intensity:  map[string]float64{"pattern": 0.35},
	},
	{
		Theme:      "dark",
		Pattern:    "gradient",
		Guidelines: []string{"Prefer a darker base; ensure sufficient text contrast."},
		Intensity:  map[string]float64{"pattern": 0.45},
	},
}

var byKey = func() map[string]Rule {
	m := make(map[string]Rule, len(DefaultRules))
	for _, r := range DefaultRules {
		m[key(r.Theme, r.Pattern)] = r
	}
	return m
}()

// Lookup finds the rule for theme+pattern, falling back to theme:gradient
// when the exact pattern has no entry, matching the original's fallback.
func Lookup(theme, pattern string) (Rule, bool) {
	if r, ok := byKey[key(theme, pattern)]; ok {
		return r, true
	}
	r, ok := byKey[key(theme, "gradient")]
	return r, ok
}
