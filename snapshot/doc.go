// Package snapshot builds heap images that can seed new isolates.
//
// Build runs a list of setup scripts inside a disposable heap and serializes
// the resulting default scope. The builder keeps two scopes: every script
// runs first against the default scope that becomes the image, then its
// already-compiled form is re-run against a dirty scope so warmup work never
// contaminates the captured state. An optional warmup script runs on the
// dirty scope only.
package snapshot
