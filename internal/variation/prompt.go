package variation

import (
	"strings"

	"imagestudio/internal/providers/genai"
)

// Request carries the immutable input of a single variation invocation.
type Request struct {
	Reference      genai.InlineImage
	Instruction    string
	AspectRatio    string
	EnhanceQuality bool
}

// BuildInstruction combines the user's free-text instruction with the fixed
// directive block, and conditionally appends the fidelity block when enhanced
// quality is requested. The two-tier structure keeps output quality consistent
// across callers: the base block is always present, the enhancement block only
// when asked for.
func BuildInstruction(req Request) string {
	var lines []string

	if instruction := strings.TrimSpace(req.Instruction); instruction != "" {
		lines = append(lines, "Create a new variation of the reference photo: "+instruction+".")
	} else {
		lines = append(lines, "Create a new creative variation of the reference photo.")
	}

	lines = append(lines,
		"Keep the main subject recognizable and preserve its shape, proportions, and key details.",
		"Render a photorealistic result with clean lighting, sharp focus, and no artefacts, text, or watermarks.")

	if aspect := strings.TrimSpace(req.AspectRatio); aspect != "" {
		lines = append(lines, "Compose the image for a "+aspect+" aspect ratio.")
	}

	if req.EnhanceQuality {
		lines = append(lines,
			"Additionally, push the fidelity further:",
			"refine the lighting with soft, directional key light and natural falloff,",
			"preserve fine micro-texture on surfaces instead of smoothing it away,",
			"denoise shadows without losing detail,",
			"and balance the composition so the subject sits naturally in the frame.")
	}

	return strings.Join(lines, "\n")
}
