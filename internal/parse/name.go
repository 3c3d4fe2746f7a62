package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var nameRe = regexp.MustCompile(`(?i)^\s*([wd])\s*-?\s*(\d+)\s*$`)

// Kind is the machine type encoded in a display name.
type Kind string

const (
	KindWasher  Kind = "washer"
	KindDryer   Kind = "dryer"
	KindUnknown Kind = "unknown"
)

// ParsedName holds the structured data parsed from a machine's display name.
type ParsedName struct {
	Kind Kind
	Seq  int
}

// ParseName extracts the machine kind and sequence number from a display
// name such as "W1" or "D3". Names that do not follow that shape yield
// KindUnknown together with an error; callers usually keep the kind and
// carry on.
func ParseName(raw string) (ParsedName, error) {
	m := nameRe.FindStringSubmatch(raw)
	if m == nil {
		return ParsedName{Kind: KindUnknown}, fmt.Errorf("unable to parse machine name: %q", raw)
	}

	seq, err := strconv.Atoi(m[2])
	if err != nil {
		return ParsedName{Kind: KindUnknown}, fmt.Errorf("unable to parse sequence of machine name %q: %w", raw, err)
	}

	kind := KindWasher
	if strings.EqualFold(m[1], "d") {
		kind = KindDryer
	}
	return ParsedName{Kind: kind, Seq: seq}, nil
}
