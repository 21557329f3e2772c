// Package sections parses converted document text into named, paged sections.
//
// Converted documents mark every section with a header of the form
//
//	#Section Balance Sheet
//	#Page 3
//
// followed by free-form content that runs until the next line starting
// with "#Section" or the end of input.
package sections

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/logger"
)

var header = regexp.MustCompile(`#Section\s+([^\n]+)\s+#Page\s+(\d+)`)

// boundary ends a section's content.
const boundary = "\n#Section"

// newlines folds CRLF and bare CR line endings to LF.
var newlines = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeNewlines returns s with every line ending as a single LF.
func NormalizeNewlines(s string) string {
	if !strings.Contains(s, "\r") {
		return s
	}
	return newlines.Replace(s)
}

// Extract returns the non-empty sections of content in document order.
// Sections with the same name are all kept. Pages are numbered from 1;
// a zero or out-of-range page marker is recorded as page 1.
func Extract(content string) []domain.Section {
	content = NormalizeNewlines(content)

	var out []domain.Section

	pos := 0
	for pos < len(content) {
		loc := header.FindStringSubmatchIndex(content[pos:])
		if loc == nil {
			break
		}

		name := strings.TrimSpace(content[pos+loc[2] : pos+loc[3]])
		raw := content[pos+loc[4] : pos+loc[5]]
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			logger.Warn("Section %q has invalid page %q, using page 1", name, raw)
			page = 1
		}

		start := pos + loc[1]
		end := len(content)
		if i := strings.Index(content[start:], boundary); i >= 0 {
			end = start + i
		}
		pos = end

		body := strings.TrimSpace(content[start:end])
		if body == "" {
			continue
		}
		out = append(out, domain.Section{Name: name, Page: page, Content: body})
	}

	return out
}

// Names returns the distinct section names in first-seen order.
func Names(secs []domain.Section) []string {
	seen := make(map[string]bool, len(secs))
	var names []string
	for _, s := range secs {
		if !seen[s.Name] {
			seen[s.Name] = true
			names = append(names, s.Name)
		}
	}
	return names
}
