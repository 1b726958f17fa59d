package isolates

// Version is the module version embedded in code-cache envelopes.
// Caches produced by a different major version, or by a newer minor
// version, are rejected at compile time.
const Version = "0.1.0"
