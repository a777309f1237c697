package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini Slide Imagery Service
// Uses the Google Gen AI SDK to render one illustration per slide. The slide
// heading and text drive the scene; the configured style hint keeps imagery
// consistent across a job.
// ---------------------------------------------------------------------------

const geminiImageModel = "gemini-3-pro-image-preview"

type GeminiService struct {
	apiKey string
	style  string
}

var _ SlideRenderer = (*GeminiService)(nil)

// NewGeminiService creates a Gemini slide renderer. style is a short visual
// direction applied to every slide (e.g. "clean editorial illustration").
func NewGeminiService(apiKey, style string) *GeminiService {
	if style == "" {
		style = "clean editorial illustration"
	}
	return &GeminiService{
		apiKey: apiKey,
		style:  style,
	}
}

// Render generates a single slide image. Each call is independent — safe for
// parallel execution across slides.
func (s *GeminiService) Render(ctx context.Context, slideText, title string) ([]byte, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	prompt := composeSlidePrompt(slideText, title, s.style)

	log.Printf("[Gemini] Rendering slide image (title=%q, promptLen=%d)", title, len(prompt))

	resp, err := client.Models.GenerateContent(ctx, geminiImageModel, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates in gemini response")
	}

	var textParts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			log.Printf("[Gemini] Slide image rendered (%d bytes)", len(part.InlineData.Data))
			return part.InlineData.Data, nil
		}
		if part.Text != "" {
			textParts = append(textParts, part.Text)
		}
	}

	if len(textParts) > 0 {
		msg := textParts[0]
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("gemini returned text instead of image: %s", msg)
	}
	return nil, fmt.Errorf("no image data in gemini response (%d parts)", len(resp.Candidates[0].Content.Parts))
}

// composeSlidePrompt builds the image prompt from the slide content. The
// slide text describes the scene; the heading anchors the subject; the style
// hint keeps all slides of a job visually consistent.
func composeSlidePrompt(slideText, title, style string) string {
	var b strings.Builder

	b.WriteString("Create a presentation slide background illustrating the following content. ")
	b.WriteString("No text, letters, or captions in the image — the narration carries the words.\n\n")

	if title != "" {
		fmt.Fprintf(&b, "SUBJECT: %s\n\n", title)
	}

	b.WriteString("CONTENT:\n")
	b.WriteString(slideText)

	fmt.Fprintf(&b, "\n\nSTYLE: %s. Landscape 16:9, muted palette, high detail.", style)

	return b.String()
}
