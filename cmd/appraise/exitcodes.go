package main

const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing credentials, invalid paths)
	ExitDataError   = 3 // Data error (unreadable corpus, malformed survey data)
	ExitPartial     = 4 // Batch finished but some reports failed
)
