package main

// Exit codes.
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (not a repository, invalid config)
	ExitDataError   = 3 // Data error (not seeded, malformed input)
	ExitNotFound    = 4 // Requested content, composition, or relation not found
	ExitOllama      = 5 // Embedding provider not available
)
