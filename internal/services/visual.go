package services

import "context"

// SlideRenderer is the interface the image-generation collaborator must
// implement. One call renders one slide; calls are independent and safe to
// run in parallel across slides.
type SlideRenderer interface {
	// Render produces a raster image for a slide from its text and heading.
	Render(ctx context.Context, slideText, title string) ([]byte, error)
}
