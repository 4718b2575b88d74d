// Package projectkey validates Deta project keys and extracts the project
// id used to build service endpoints.
package projectkey

import (
	"errors"
	"regexp"
	"strings"
)

const separator = "_"

// ErrInvalid is returned when a project key does not have the
// `<id>_<secret>` format.
var ErrInvalid = errors.New("invalid project key")

var pattern = regexp.MustCompile(`^[0-9a-z]+_[0-9A-Za-z]+$`)

// IsValid reports whether key is a well-formed project key.
func IsValid(key string) bool {
	return pattern.MatchString(key)
}

// Validate returns ErrInvalid if key is not a well-formed project key.
func Validate(key string) error {
	if !IsValid(key) {
		return ErrInvalid
	}
	return nil
}

// ProjectID validates key and returns its id part.
func ProjectID(key string) (string, error) {
	if err := Validate(key); err != nil {
		return "", err
	}
	id, _, _ := strings.Cut(key, separator)
	return id, nil
}
