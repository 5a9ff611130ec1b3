package exchange

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SynonymTable groups base-asset codes that name the same asset on
// different venues. Lookup is by uppercase code.
type SynonymTable map[string][]string

// DefaultSynonyms returns the built-in table. BTC and XBT are the one class
// shipped by default; venues like Kraken list Bitcoin as XBT.
func DefaultSynonyms() SynonymTable {
	return buildTable([][]string{{"BTC", "XBT"}})
}

// LoadSynonyms reads a synonym table from a YAML file of the form
//
//	classes:
//	  - [BTC, XBT]
//
// An empty path returns the default table.
func LoadSynonyms(path string) (SynonymTable, error) {
	if path == "" {
		return DefaultSynonyms(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("synonym table: %w", err)
	}
	var doc struct {
		Classes [][]string `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("synonym table: %w", err)
	}
	if len(doc.Classes) == 0 {
		return DefaultSynonyms(), nil
	}
	return buildTable(doc.Classes), nil
}

func buildTable(classes [][]string) SynonymTable {
	t := make(SynonymTable)
	for _, class := range classes {
		norm := make([]string, 0, len(class))
		for _, code := range class {
			norm = append(norm, strings.ToUpper(strings.TrimSpace(code)))
		}
		for _, code := range norm {
			t[code] = norm
		}
	}
	return t
}

// Class returns every code naming the same asset as base, including base
// itself.
func (t SynonymTable) Class(base string) []string {
	b := strings.ToUpper(strings.TrimSpace(base))
	if class, ok := t[b]; ok {
		return class
	}
	return []string{b}
}

// Matches reports whether candidate belongs to the synonym class of base.
func (t SynonymTable) Matches(base, candidate string) bool {
	c := strings.ToUpper(strings.TrimSpace(candidate))
	for _, code := range t.Class(base) {
		if code == c {
			return true
		}
	}
	return false
}

// resolveSymbol maps a canonical BASE/QUOTE symbol onto a venue market key:
// a direct hit when the venue keys markets canonically, otherwise the unique
// active market whose quote matches and whose base is in the synonym class.
func resolveSymbol(venue string, markets map[string]MarketMeta, syn SynonymTable, canonical string) (string, error) {
	if m, ok := markets[canonical]; ok && m.Active {
		return canonical, nil
	}
	base, quote, err := SplitSymbol(canonical)
	if err != nil {
		return "", err
	}
	for key, m := range markets {
		if !m.Active {
			continue
		}
		if strings.ToUpper(m.Quote) == quote && syn.Matches(base, m.Base) {
			return key, nil
		}
	}
	return "", &SymbolNotFoundError{Venue: venue, Symbol: canonical}
}
