package scoring

// Voice labels.
const (
	Nervous        = "nervous"
	Calm           = "neutral/calm"
	ExcitedAnxious = "excited/anxious"
	Unknown        = "unknown"
)

const (
	lowPitchHz  = 120.0
	highPitchHz = 180.0
	quietEnergy = 0.01
)

// VoiceFeatures is the pair extracted from one recorded clip.
type VoiceFeatures struct {
	MeanPitchHz float64 `json:"mean_pitch_hz" yaml:"mean_pitch_hz"`
	MeanEnergy  float64 `json:"mean_energy" yaml:"mean_energy"`
}

// ClassifyVoice applies the threshold rules in order; the first match wins.
// Low pitch with energy at or above the quiet threshold is deliberately left
// as unknown. NaN inputs end up there too.
func ClassifyVoice(meanPitchHz, meanEnergy float64) (string, float64) {
	switch {
	case meanPitchHz < lowPitchHz && meanEnergy < quietEnergy:
		return Nervous, 0.30
	case meanPitchHz >= lowPitchHz && meanPitchHz <= highPitchHz:
		return Calm, 0.80
	case meanPitchHz > highPitchHz:
		return ExcitedAnxious, 0.50
	default:
		return Unknown, DefaultScore
	}
}

// Classify is ClassifyVoice over a features value.
func (f VoiceFeatures) Classify() (string, float64) {
	return ClassifyVoice(f.MeanPitchHz, f.MeanEnergy)
}

// VoiceFallback is reported when no features could be extracted.
func VoiceFallback() (string, float64) { return Unknown, DefaultScore }
