package core

import (
	"fmt"
	"regexp"
)

var sinkNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]+$`)

// ValidateSinks enforces basic sink contract invariants at startup.
func ValidateSinks(sinks []Sink) error {
	seen := make(map[string]bool)
	for _, sink := range sinks {
		name := sink.Name()
		if name == "" {
			return fmt.Errorf("sink name is empty")
		}
		if !sinkNamePattern.MatchString(name) {
			return fmt.Errorf("sink name %q does not match %s", name, sinkNamePattern.String())
		}
		if seen[name] {
			return fmt.Errorf("duplicate sink name: %s", name)
		}
		seen[name] = true
	}
	return nil
}
