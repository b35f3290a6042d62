package models

import "errors"

var (
	// ErrMalformedInput marks a corpus or query input that is missing or is not
	// a sequence of the expected records.
	ErrMalformedInput = errors.New("malformed input")

	// ErrCollaborator marks a failure of the embedding, summary or
	// text-generation collaborator that could not be replaced by a fallback.
	ErrCollaborator = errors.New("collaborator failure")
)
