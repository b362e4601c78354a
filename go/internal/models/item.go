package models

// GenerationPhase tracks how far along a movie card's generated assets are.
// Wheel sectors never leave PhaseCompleted.
type GenerationPhase string

const (
	PhasePending          GenerationPhase = "PENDING"
	PhaseGenerating       GenerationPhase = "GENERATING"
	PhaseTitleReady       GenerationPhase = "TITLE_READY"
	PhasePosterReady      GenerationPhase = "POSTER_READY"
	PhaseDescriptionReady GenerationPhase = "DESCRIPTION_READY"
	PhaseCompleted        GenerationPhase = "COMPLETED"
	PhaseFailed           GenerationPhase = "FAILED"
)

// ParseGenerationPhase maps current and legacy wire spellings onto a
// GenerationPhase. ok is false when the value is unrecognized and the caller
// should infer the phase from the payload's auxiliary flags instead.
func ParseGenerationPhase(raw string) (GenerationPhase, bool) {
	switch GenerationPhase(raw) {
	case PhasePending, PhaseGenerating, PhaseTitleReady, PhasePosterReady,
		PhaseDescriptionReady, PhaseCompleted, PhaseFailed:
		return GenerationPhase(raw), true
	}
	switch raw {
	case "title-ready":
		return PhaseTitleReady, true
	case "poster-ready":
		return PhasePosterReady, true
	case "description-ready":
		return PhaseDescriptionReady, true
	case "done": // legacy terminal spelling
		return PhaseCompleted, true
	}
	return "", false
}

// InferGenerationPhase derives a phase from the presence flags that
// accompany a progress payload whose status field was absent or
// unrecognized.
func InferGenerationPhase(hasTitle, hasPoster, hasDescription bool) GenerationPhase {
	switch {
	case hasTitle:
		return PhaseTitleReady
	case hasPoster:
		return PhasePosterReady
	case hasDescription:
		return PhaseDescriptionReady
	default:
		return PhaseGenerating
	}
}

// Item is one wheel sector or one movie card.
type Item struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"sessionId"`
	Label       string          `json:"label"`
	Name        string          `json:"name"`
	Eliminated  bool            `json:"eliminated"`
	Winner      bool            `json:"winner"`
	Description string          `json:"description,omitempty"`
	Pattern     string          `json:"pattern,omitempty"`
	Poster      string          `json:"poster,omitempty"`
	Genre       string          `json:"genre,omitempty"`
	Rating      string          `json:"rating,omitempty"`
	Year        string          `json:"year,omitempty"`
	LabelColor  string          `json:"labelColor,omitempty"`
	LabelHidden bool            `json:"labelHidden"`
	Phase       GenerationPhase `json:"generationStatus,omitempty"`
	// EliminatedAtRound is 0 while the item is still active.
	EliminatedAtRound int    `json:"eliminatedAtRound,omitempty"`
	FinalPosition     int    `json:"finalPosition,omitempty"`
	OwnerID           string `json:"userId,omitempty"`
}
