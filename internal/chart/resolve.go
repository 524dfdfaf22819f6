package chart

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/tabletalk/tabletalk/internal/table"
	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var aliasesYAML []byte

type alias struct {
	Word    string   `yaml:"word"`
	Columns []string `yaml:"columns"`
}

var aliases = mustLoadAliases(aliasesYAML)

func mustLoadAliases(raw []byte) []alias {
	var out []alias
	if err := yaml.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("chart: parse aliases.yaml: %v", err))
	}
	return out
}

// ResolveColumns picks the x and y columns for a question. Columns named in
// the question come first, in table order. Alias words fill the gap next,
// then numeric columns. Leftover columns in table order only complete a
// pair that one of those steps started; a table with no named, aliased or
// numeric column does not resolve.
func ResolveColumns(t *table.Table, question string) (string, string, error) {
	lower := strings.ToLower(question)
	found := make([]string, 0, 2)
	add := func(name string) bool {
		for _, existing := range found {
			if existing == name {
				return false
			}
		}
		found = append(found, name)
		return len(found) == 2
	}

	for _, name := range t.ColumnNames() {
		if strings.Contains(lower, strings.ToLower(name)) && add(name) {
			return found[0], found[1], nil
		}
	}
	for _, a := range aliases {
		if !containsWord(lower, a.Word) {
			continue
		}
		if name, ok := matchAlias(t, a.Columns); ok && add(name) {
			return found[0], found[1], nil
		}
	}
	for _, name := range t.NumericColumns() {
		if add(name) {
			return found[0], found[1], nil
		}
	}
	if len(found) == 1 {
		for _, name := range t.ColumnNames() {
			if add(name) {
				return found[0], found[1], nil
			}
		}
	}
	return "", "", ErrUnresolvedColumns
}

// matchAlias tries every variant as an exact column name before falling
// back to substring matches.
func matchAlias(t *table.Table, variants []string) (string, bool) {
	for _, variant := range variants {
		if col, ok := t.ColumnFold(variant); ok {
			return col.Name, true
		}
	}
	for _, variant := range variants {
		needle := strings.ToLower(variant)
		for _, name := range t.ColumnNames() {
			if strings.Contains(strings.ToLower(name), needle) {
				return name, true
			}
		}
	}
	return "", false
}

func containsWord(text, word string) bool {
	for _, field := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	}) {
		if field == word || strings.TrimSuffix(field, "s") == word {
			return true
		}
	}
	return false
}
