package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxSuggestDistance is the largest edit distance still offered as a
// "did you mean" suggestion.
const maxSuggestDistance = 3

// knownKeys and knownSections are derived from the toml tags on Config, so
// a new field is accepted in the file as soon as it exists.
var knownKeys, knownSections = tomlSchema(reflect.TypeFor[Config]())

func tomlSchema(t reflect.Type) (keys, sections []string) {
	for i := range t.NumField() {
		f := t.Field(i)

		tag, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if tag == "" || tag == "-" {
			continue
		}

		if f.Type.Kind() != reflect.Struct {
			keys = append(keys, tag)
			continue
		}

		sections = append(sections, tag)

		for j := range f.Type.NumField() {
			if sub, _, _ := strings.Cut(f.Type.Field(j).Tag.Get("toml"), ","); sub != "" && sub != "-" {
				keys = append(keys, tag+"."+sub)
			}
		}
	}

	// Sorted so equal-distance suggestions are deterministic.
	slices.Sort(keys)
	slices.Sort(sections)

	return keys, sections
}

// checkUnknownKeys turns keys the decoder did not consume into errors with
// suggestions. A misspelled section is reported once, not once per key.
func checkUnknownKeys(md *toml.MetaData) error {
	var (
		errs     []error
		reported = make(map[string]bool)
	)

	for _, key := range md.Undecoded() {
		name := key.String()

		if section, _, nested := strings.Cut(name, "."); nested && !slices.Contains(knownSections, section) {
			if !reported[section] {
				reported[section] = true
				errs = append(errs, unknownError("section", section, knownSections))
			}

			continue
		}

		if len(key) == 1 && slices.Contains(knownSections, name) {
			continue
		}

		if len(key) == 1 && hasNested(md.Undecoded(), name) {
			continue
		}

		errs = append(errs, unknownError("key", name, knownKeys))
	}

	return errors.Join(errs...)
}

// hasNested reports whether any undecoded key lives under table name.
func hasNested(keys []toml.Key, name string) bool {
	for _, k := range keys {
		if len(k) > 1 && k[0] == name {
			return true
		}
	}

	return false
}

func unknownError(kind, name string, known []string) error {
	if suggestion := closestMatch(name, known); suggestion != "" {
		return fmt.Errorf("unknown config %s %q, did you mean %q?", kind, name, suggestion)
	}

	return fmt.Errorf("unknown config %s %q", kind, name)
}

// closestMatch returns the nearest candidate within maxSuggestDistance, or "".
func closestMatch(name string, candidates []string) string {
	best, bestDist := "", maxSuggestDistance+1

	for _, c := range candidates {
		if d := levenshtein(name, c); d < bestDist {
			best, bestDist = c, d
		}
	}

	return best
}

// levenshtein is the edit distance between a and b, computed over one row.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i

		for j := 1; j <= len(rb); j++ {
			above := row[j]

			sub := diag
			if ra[i-1] != rb[j-1] {
				sub++
			}

			row[j] = min(row[j-1]+1, above+1, sub)
			diag = above
		}
	}

	return row[len(rb)]
}
