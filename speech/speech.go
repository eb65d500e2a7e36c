// Package speech validates text-to-speech settings and manages the saved
// messages of a session. Synthesis itself runs in the browser.
package speech

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/drug-portal-api/interfaces"
	"github.com/google/uuid"
)

// Slider bounds of the speech controls
const (
	MinRate   = 0.5
	MaxRate   = 2.0
	MinPitch  = 0.5
	MaxPitch  = 2.0
	MinVolume = 0.0
	MaxVolume = 1.0

	MaxMessageLength = 5000
	MaxVoiceLength   = 200
)

var (
	ErrInvalidOptions  = errors.New("invalid speech options")
	ErrEmptyText       = errors.New("please enter some text to save")
	ErrTextTooLong     = errors.New("text too long")
	ErrMessageNotFound = errors.New("saved message not found")
)

// ValidateOptions checks every setting against its slider range
func ValidateOptions(opts interfaces.SpeechOptions) error {
	// NaN fails no comparison and cannot be encoded as JSON
	for _, v := range []float64{opts.Rate, opts.Pitch, opts.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: values must be finite numbers", ErrInvalidOptions)
		}
	}
	if opts.Rate < MinRate || opts.Rate > MaxRate {
		return fmt.Errorf("%w: rate must be between %.1f and %.1f", ErrInvalidOptions, MinRate, MaxRate)
	}
	if opts.Pitch < MinPitch || opts.Pitch > MaxPitch {
		return fmt.Errorf("%w: pitch must be between %.1f and %.1f", ErrInvalidOptions, MinPitch, MaxPitch)
	}
	if opts.Volume < MinVolume || opts.Volume > MaxVolume {
		return fmt.Errorf("%w: volume must be between %.1f and %.1f", ErrInvalidOptions, MinVolume, MaxVolume)
	}
	if utf8.RuneCountInString(opts.Voice) > MaxVoiceLength {
		return fmt.Errorf("%w: voice name too long", ErrInvalidOptions)
	}
	return nil
}

// NewMessage builds a saved message with a fresh id
func NewMessage(text string, now time.Time) (interfaces.SavedMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return interfaces.SavedMessage{}, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return interfaces.SavedMessage{}, fmt.Errorf("%w: max %d characters", ErrTextTooLong, MaxMessageLength)
	}
	return interfaces.SavedMessage{ID: uuid.New().String(), Text: text, CreatedAt: now}, nil
}

// RemoveMessage deletes the message with id from state
func RemoveMessage(state *interfaces.SessionState, id string) error {
	i := slices.IndexFunc(state.Messages, func(m interfaces.SavedMessage) bool { return m.ID == id })
	if i < 0 {
		return ErrMessageNotFound
	}
	state.Messages = slices.Delete(state.Messages, i, i+1)
	return nil
}
