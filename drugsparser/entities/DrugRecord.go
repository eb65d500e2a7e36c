package entities

import (
	"strings"

	"golang.org/x/text/cases"
)

// matchSeparator keeps substring matches from spanning two fields
const matchSeparator = "\x00"

// DrugRecord is one medication entry of a letter shard
type DrugRecord struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Price                string `json:"price"`
	IsDiscontinued       bool   `json:"isDiscontinued"`
	ManufacturerName     string `json:"manufacturerName"`
	Type                 string `json:"type"`
	PackSizeLabel        string `json:"packSizeLabel"`
	CompositionPrimary   string `json:"compositionPrimary"`
	CompositionSecondary string `json:"compositionSecondary,omitempty"`

	// Pre-computed: case-folded name, manufacturer and compositions joined by matchSeparator
	SearchText string `json:"-"`
}

// ComputeSearchText fills SearchText from the searchable fields
func (d *DrugRecord) ComputeSearchText() {
	d.SearchText = d.foldedText()
}

func (d *DrugRecord) foldedText() string {
	parts := []string{d.Name, d.ManufacturerName, d.CompositionPrimary}
	if d.CompositionSecondary != "" {
		parts = append(parts, d.CompositionSecondary)
	}
	return cases.Fold().String(strings.Join(parts, matchSeparator))
}

// Matches reports whether the case-folded needle is a substring of one of the searchable fields
func (d *DrugRecord) Matches(foldedNeedle string) bool {
	if foldedNeedle == "" || strings.Contains(foldedNeedle, matchSeparator) {
		return false
	}
	text := d.SearchText
	if text == "" {
		text = d.foldedText()
	}
	return strings.Contains(text, foldedNeedle)
}

// FoldQuery case-folds a user query the same way record fields are folded
func FoldQuery(query string) string {
	return cases.Fold().String(query)
}
