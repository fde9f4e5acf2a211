package segment

import (
	"strings"
	"unicode/utf8"

	"docqa/internal/models"
)

// ScannedCharFloor is the total character count under which a document is
// treated as having no usable text layer.
const ScannedCharFloor = 100

// DetectScannedPDF reports whether OCR is needed: too little text overall, or
// any page with no text at all.
func DetectScannedPDF(pages []models.PageText) bool {
	if len(pages) == 0 {
		return true
	}
	total := 0
	for _, p := range pages {
		t := strings.TrimSpace(p.Text)
		if t == "" {
			return true
		}
		total += utf8.RuneCountInString(t)
	}
	return total < ScannedCharFloor
}
