package lyrics

import "errors"

// Load state kinds as reported over the API
const (
	KindLoading  = "loading"
	KindNotFound = "not_found"
	KindSuccess  = "success"
	KindError    = "error"
)

// LoadState is the availability of a document while it is being resolved.
// The only implementations are Loading, NotFound, Success and Error.
type LoadState interface {
	Kind() string
	isLoadState()
}

// Loading means a load is in flight
type Loading struct{}

// NotFound means every source was asked and none had lyrics
type NotFound struct{}

// Success carries the loaded document
type Success struct {
	Lyrics *Lyrics
}

// Error carries a load failure
type Error struct {
	Message string
}

func (Loading) Kind() string  { return KindLoading }
func (NotFound) Kind() string { return KindNotFound }
func (Success) Kind() string  { return KindSuccess }
func (Error) Kind() string    { return KindError }

func (Loading) isLoadState()  {}
func (NotFound) isLoadState() {}
func (Success) isLoadState()  {}
func (Error) isLoadState()    {}

// StateFromResult maps a loader result onto a load state
func StateFromResult(doc *Lyrics, err error) LoadState {
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFound{}
	case err != nil:
		return Error{Message: err.Error()}
	case doc == nil || doc.IsEmpty():
		return NotFound{}
	default:
		return Success{Lyrics: doc}
	}
}

// Document returns the loaded document when state is Success
func Document(state LoadState) (*Lyrics, bool) {
	s, ok := state.(Success)
	if !ok || s.Lyrics == nil {
		return nil, false
	}
	return s.Lyrics, true
}
