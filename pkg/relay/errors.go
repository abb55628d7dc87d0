package relay

import "errors"

var (
	// ErrMissingRecognizerKey is returned by Open when the client did not
	// supply a speech-recognition credential. The connection is closed
	// with a policy-violation code.
	ErrMissingRecognizerKey = errors.New("relay: AssemblyAI API key not provided")

	// ErrMissingReplyKey is returned by Providers.Replier when no reply
	// credential was supplied. Each turn then reports an llm_error.
	ErrMissingReplyKey = errors.New("relay: Gemini API key not provided")

	// ErrNoProviders is returned by New without a Providers factory.
	ErrNoProviders = errors.New("relay: providers required")

	// ErrSessionClosed is returned when using a closed session.
	ErrSessionClosed = errors.New("relay: session closed")
)
