package generator

import "errors"

var (
	// ErrEmptyInput indicates a file document with no source content.
	ErrEmptyInput = errors.New("document source content is empty")

	// ErrUnsupportedKind indicates a document that is neither a file nor
	// a directory.
	ErrUnsupportedKind = errors.New("unsupported document kind")

	// ErrDependencyNotReady indicates a directory whose children have not
	// all completed.
	ErrDependencyNotReady = errors.New("child documents not yet completed")

	// ErrMarkdownEmpty indicates the model produced no markdown body.
	ErrMarkdownEmpty = errors.New("generated markdown is empty")
)
