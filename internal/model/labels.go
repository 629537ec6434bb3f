package model

import "strings"

// DefaultLabeler converts a wire name into a human-friendly label. It splits
// on underscores and dashes and title-cases each word, so "n_reference_frames"
// becomes "N Reference Frames".
func DefaultLabeler(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	for i, word := range words {
		words[i] = titleCase(word)
	}
	return strings.Join(words, " ")
}

func titleCase(word string) string {
	if word == "" {
		return ""
	}
	lower := strings.ToLower(word)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
