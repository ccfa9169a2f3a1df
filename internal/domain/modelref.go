package domain

import "strings"

// ModelRef is a provider-qualified model identifier
type ModelRef struct {
	ProviderID string
	ModelID    string
}

// ParseModelRef splits a "providerID/modelID" string on the first slash.
// Malformed references (no slash, or a slash at either end) report ok=false,
// which callers treat as "use the default model" rather than an error.
func ParseModelRef(s string) (ModelRef, bool) {
	idx := strings.Index(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return ModelRef{}, false
	}
	return ModelRef{ProviderID: s[:idx], ModelID: s[idx+1:]}, true
}
