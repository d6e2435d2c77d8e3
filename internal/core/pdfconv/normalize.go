package pdfconv

import "strings"

// Normalize trims every line, collapses runs of blank lines into one and
// drops blank lines at both ends. Normalize(Normalize(s)) == Normalize(s).
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			kept = append(kept, line)
			continue
		}
		if len(kept) > 0 && kept[len(kept)-1] != "" {
			kept = append(kept, "")
		}
	}
	for len(kept) > 0 && kept[len(kept)-1] == "" {
		kept = kept[:len(kept)-1]
	}
	return strings.Join(kept, "\n")
}
