package services

import (
	"context"
	"fmt"
	"io"
	"log"

	openai "github.com/sashabaranov/go-openai"
)

// ---------------------------------------------------------------------------
// OpenAI Text-to-Speech Service
// Fallback narration provider when no ElevenLabs key is configured.
// Model: tts-1 — fast, good quality, no voice cloning support.
// ---------------------------------------------------------------------------

const openaiTTSSpeed = 0.95

type OpenAITTSService struct {
	client *openai.Client
	voice  openai.SpeechVoice
}

var _ Narrator = (*OpenAITTSService)(nil)

// NewOpenAITTSService creates an OpenAI narrator. voice picks one of the
// built-in OpenAI voices; empty defaults to "alloy".
func NewOpenAITTSService(apiKey, voice string) *OpenAITTSService {
	v := openai.VoiceAlloy
	if voice != "" {
		v = openai.SpeechVoice(voice)
	}
	return &OpenAITTSService{
		client: openai.NewClient(apiKey),
		voice:  v,
	}
}

// Synthesize converts slide text to speech using the OpenAI speech endpoint.
// OpenAI voices are fixed, so voiceRef is ignored; language is picked up by
// the model from the text itself.
func (s *OpenAITTSService) Synthesize(ctx context.Context, text, language, voiceRef string) (*SpeechResult, error) {
	log.Printf("[OpenAI TTS] Generating speech (voice=%s, textLen=%d)", s.voice, len(text))

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
		Speed:          openaiTTSSpeed,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI speech request failed: %w", err)
	}
	defer resp.Close()

	audioData, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read OpenAI audio response: %w", err)
	}

	if len(audioData) == 0 {
		return nil, fmt.Errorf("OpenAI returned empty audio")
	}

	duration := estimateSpeechDuration(text, openaiTTSSpeed)

	log.Printf("[OpenAI TTS] Speech generated (%d bytes, estimated %.1fs)", len(audioData), duration)

	return &SpeechResult{
		AudioData: audioData,
		Duration:  duration,
		Format:    "mp3",
	}, nil
}
