package base

import (
	"github.com/bitrise-io/go-deta/transport"
)

// EncodeURIComponent is the default key encoding. It keeps letters, digits
// and -_.!~*'() and percent-encodes every other byte.
func EncodeURIComponent(key string) string {
	return transport.EncodeURIComponent(key)
}
