package labels

import "errors"

// Errors returned by the decoder, the prediction file codec and the dataset
// loaders. Callers match them with errors.Is.
var (
	ErrFormat   = errors.New("unsupported file format")
	ErrNotFound = errors.New("file not found")
	ErrParse    = errors.New("malformed record")
	ErrShape    = errors.New("shape mismatch")
)
