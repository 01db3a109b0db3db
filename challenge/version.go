package challenge

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Version tags a challenge scheme. Solutions carry it as a prefix:
// "<version>.<base64 signature-or-hash>".
type Version string

const (
	V1 Version = "v1"
	V2 Version = "v2"
)

const solutionSeparator = "."

// Solution is a parsed versioned challenge solution.
type Solution struct {
	Version Version
	Value   []byte
}

// ParseSolution splits a versioned solution string. It does not check that
// the version is registered.
func ParseSolution(s string) (Solution, error) {
	version, encoded, ok := strings.Cut(s, solutionSeparator)
	if !ok || version == "" || encoded == "" {
		return Solution{}, fmt.Errorf("malformed solution")
	}
	value, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Solution{}, fmt.Errorf("malformed solution value: %w", err)
	}
	return Solution{Version: Version(version), Value: value}, nil
}

func (s Solution) String() string {
	return FormatSolution(s.Version, s.Value)
}

func FormatSolution(v Version, value []byte) string {
	return string(v) + solutionSeparator + base64.StdEncoding.EncodeToString(value)
}
