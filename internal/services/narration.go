package services

import "context"

// ---------------------------------------------------------------------------
// Narrator — common interface for text-to-speech providers
// Both ElevenLabs and OpenAI implement this interface so the orchestrator
// can use whichever is configured without knowing the underlying provider.
// ---------------------------------------------------------------------------

// SpeechResult is the common response type from any narration provider.
// Duration is an estimate derived from the text; the orchestrator probes the
// written file for the real duration and only falls back to this value.
type SpeechResult struct {
	AudioData []byte
	Duration  float64 // estimated seconds
	Format    string  // "mp3", "wav", etc.
}

// Narrator is the interface any narration provider must implement.
type Narrator interface {
	// Synthesize converts slide text into narration audio. voiceRef is an
	// optional provider-specific voice reference (an ElevenLabs voice ID or
	// an uploaded sample id); providers may ignore it.
	Synthesize(ctx context.Context, text, language, voiceRef string) (*SpeechResult, error)
}

// estimateSpeechDuration estimates narration length from word count.
// Average narration pace is ~140 words per minute (slower than conversation).
func estimateSpeechDuration(text string, speed float64) float64 {
	words := countWords(text)
	actualWPM := 140.0 * speed
	return float64(words) / actualWPM * 60.0
}

func countWords(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}
