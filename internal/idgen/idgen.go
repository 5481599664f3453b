package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a new globally unique identifier as string. It is implemented
// as a thin wrapper so tests can stub it.

var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// NewHex returns a short lower-case hexadecimal identifier of n characters,
// used for per-video output directory names.
func NewHex(n int) string {
	hex := strings.ReplaceAll(NewFunc(), "-", "")
	if n <= 0 || n > len(hex) {
		n = len(hex)
	}
	return hex[:n]
}
