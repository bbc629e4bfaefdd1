package providers

import (
	"fmt"
	"strings"
)

// Request describes the song lyrics are wanted for. FilePath is the audio
// file on disk when the song is local; remote sources ignore it.
type Request struct {
	SongID     int64  `json:"songId,omitempty"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	FilePath   string `json:"path,omitempty"`
}

// Validate checks that the request identifies a song somehow
func (r Request) Validate() error {
	if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.FilePath) == "" {
		return fmt.Errorf("title or path is required")
	}
	if r.DurationMs < 0 {
		return fmt.Errorf("durationMs must not be negative")
	}
	return nil
}

func (r Request) String() string {
	if r.Title == "" {
		return r.FilePath
	}
	if r.Artist == "" {
		return r.Title
	}
	return r.Artist + " - " + r.Title
}

// ProviderError represents an error from a provider with additional context
type ProviderError struct {
	Provider string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError
func NewProviderError(provider, message string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Message:  message,
		Err:      err,
	}
}

var rtlLanguages = map[string]bool{
	"ar": true, // Arabic
	"fa": true, // Persian (Farsi)
	"he": true, // Hebrew
	"ur": true, // Urdu
	"ps": true, // Pashto
	"sd": true, // Sindhi
	"ug": true, // Uyghur
	"yi": true, // Yiddish
	"ku": true, // Kurdish (some dialects)
	"dv": true, // Divehi (Maldivian)
}

// IsRTLLanguage checks if a language code is right-to-left.
// Region subtags are ignored, so "ar-EG" is RTL.
func IsRTLLanguage(langCode string) bool {
	base := strings.ToLower(strings.SplitN(langCode, "-", 2)[0])
	return rtlLanguages[base]
}
