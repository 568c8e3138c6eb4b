package core

import (
	"fmt"
	"regexp"
	"strings"
)

var dynamicWhereWordRegex = regexp.MustCompile(`[A-Z][a-z0-9]*`)

// whereDynamic implements WhereDynamic by splitting a PascalCase method
// suffix like "FirstNameAndLastName" into "first_name" / "last_name" fields
// joined by the And/Or tokens that separated them, binding args
// positionally in the order the fields appear.
func whereDynamic(b *Builder, methodSuffix string, args []interface{}) (*Builder, error) {
	words := dynamicWhereWordRegex.FindAllString(methodSuffix, -1)
	if len(words) == 0 {
		return nil, fmt.Errorf("builder: WhereDynamic(%q): %w", methodSuffix, ErrUnknownMethod)
	}

	type segment struct {
		field     string
		connector string
	}
	var segments []segment
	var current []string
	connector := "AND"

	flush := func() {
		if len(current) == 0 {
			return
		}
		segments = append(segments, segment{
			field:     DefaultFieldMapFunc(strings.Join(current, "")),
			connector: connector,
		})
		current = nil
	}

	for _, w := range words {
		if w == "And" || w == "Or" {
			flush()
			connector = strings.ToUpper(w)
			continue
		}
		current = append(current, w)
	}
	flush()

	if len(segments) != len(args) {
		return nil, fmt.Errorf("builder: WhereDynamic(%q): expected %d args, got %d: %w",
			methodSuffix, len(segments), len(args), ErrBadArgument)
	}

	for i, seg := range segments {
		if i == 0 || seg.connector == "AND" {
			b.Where(seg.field, "=", args[i])
		} else {
			b.OrWhere(seg.field, "=", args[i])
		}
	}
	return b, nil
}
