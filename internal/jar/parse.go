package jar

import (
	"fmt"
	"strings"
)

// ParseMode controls how Parse treats lines that do not match the grammar.
type ParseMode string

const (
	// ParseStrict aborts on the first invalid line.
	ParseStrict ParseMode = "strict"

	// ParseLenient logs and skips invalid lines. Port collisions still
	// abort.
	ParseLenient ParseMode = "lenient"
)

// ParseParseMode converts a config or flag value to a ParseMode. The empty
// string selects ParseStrict.
func ParseParseMode(s string) (ParseMode, error) {
	switch ParseMode(strings.ToLower(s)) {
	case "", ParseStrict:
		return ParseStrict, nil
	case ParseLenient:
		return ParseLenient, nil
	}
	return "", fmt.Errorf("invalid parse mode %q (valid: strict, lenient)", s)
}

// Parse builds a new Jar from serialized text, as produced by String.
// opts configure the jar exactly as for New.
func Parse(text string, mode ParseMode, opts ...Option) (*Jar, error) {
	j, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := j.reserveLines(strings.Split(text, "\n"), mode == ParseLenient); err != nil {
		return nil, err
	}
	return j, nil
}
