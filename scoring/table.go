// Package scoring maps emotion labels to an illustrative truth likelihood.
// The numbers are for demonstration only; they are not a lie-detection signal.
package scoring

import "fmt"

// Face labels as returned by the facial-emotion classifier.
const (
	Happy    = "happy"
	Neutral  = "neutral"
	Surprise = "surprise"
	Sad      = "sad"
	Fear     = "fear"
	Angry    = "angry"
	Disgust  = "disgust"

	// ErrorLabel is what the face flow shows when classification failed.
	ErrorLabel = "Error"
)

// DefaultScore is used for every label the table does not know.
const DefaultScore = 0.50

var truthLikelihood = map[string]float64{
	Happy:    0.90,
	Neutral:  0.80,
	Surprise: 0.70,
	Sad:      0.40,
	Fear:     0.30,
	Angry:    0.20,
	Disgust:  0.10,
}

// Lookup returns the truth likelihood for a face label.
func Lookup(label string) float64 {
	if s, ok := truthLikelihood[label]; ok {
		return s
	}
	return DefaultScore
}

// FaceLabels lists the labels the table knows, strongest first.
func FaceLabels() []string {
	return []string{Happy, Neutral, Surprise, Sad, Fear, Angry, Disgust}
}

// Message renders a result the way the UI shows it.
func Message(label string, score float64) string {
	return fmt.Sprintf("Detected Emotion: %s\nEstimated Truth Likelihood: %.2f%%", label, score*100)
}
