package conversation

// Default budget thresholds, as fractions of the maximum token allowance.
const (
	DefaultWarnFraction      = 0.80
	DefaultPruneFraction     = 0.90
	DefaultEmergencyFraction = 1.50
)

// Level classifies the current estimated token usage against the budget.
type Level int

const (
	LevelOK Level = iota
	LevelWarn
	LevelPrune
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelPrune:
		return "prune"
	case LevelEmergency:
		return "emergency"
	default:
		return "ok"
	}
}

// Budget holds the model's token allowance and the thresholds at which the
// conversation manager warns, prunes, and resets.
type Budget struct {
	Model             string
	MaxTokens         int
	WarnFraction      float64
	PruneFraction     float64
	EmergencyFraction float64
}

// NewBudget creates a Budget with the default thresholds.
func NewBudget(model string, maxTokens int) *Budget {
	return &Budget{
		Model:             model,
		MaxTokens:         maxTokens,
		WarnFraction:      DefaultWarnFraction,
		PruneFraction:     DefaultPruneFraction,
		EmergencyFraction: DefaultEmergencyFraction,
	}
}

// Check classifies an estimated token count.
func (b *Budget) Check(estimated int) Level {
	if b.MaxTokens <= 0 {
		return LevelOK
	}
	frac := float64(estimated) / float64(b.MaxTokens)
	switch {
	case frac > b.EmergencyFraction:
		return LevelEmergency
	case frac >= b.PruneFraction:
		return LevelPrune
	case frac >= b.WarnFraction:
		return LevelWarn
	default:
		return LevelOK
	}
}

// Fraction returns estimated/max, or zero when no maximum is configured.
func (b *Budget) Fraction(estimated int) float64 {
	if b.MaxTokens <= 0 {
		return 0
	}
	return float64(estimated) / float64(b.MaxTokens)
}
