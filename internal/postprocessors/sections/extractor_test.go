package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []domain.Section
	}{
		{
			name:  "single section",
			input: "#Section Balance Sheet\n#Page 3\nTotal Assets AED 100 million\n",
			want:  []domain.Section{{Name: "Balance Sheet", Page: 3, Content: "Total Assets AED 100 million"}},
		},
		{
			name: "multiple sections keep order",
			input: "#Section Income Statement\n#Page 1\nNet profit 5\n" +
				"#Section Balance Sheet\n#Page 2\nAssets 10\n",
			want: []domain.Section{
				{Name: "Income Statement", Page: 1, Content: "Net profit 5"},
				{Name: "Balance Sheet", Page: 2, Content: "Assets 10"},
			},
		},
		{
			name:  "duplicate names retained",
			input: "#Section Notes\n#Page 7\nfirst\n#Section Notes\n#Page 8\nsecond",
			want: []domain.Section{
				{Name: "Notes", Page: 7, Content: "first"},
				{Name: "Notes", Page: 8, Content: "second"},
			},
		},
		{
			name:  "empty section dropped",
			input: "#Section Cover\n#Page 1\n   \n#Section Summary\n#Page 2\nbody",
			want:  []domain.Section{{Name: "Summary", Page: 2, Content: "body"}},
		},
		{
			name:  "blank lines between markers",
			input: "#Section  Cash Flow \n\n#Page   12\n\ninflows\n\noutflows\n",
			want:  []domain.Section{{Name: "Cash Flow", Page: 12, Content: "inflows\n\noutflows"}},
		},
		{
			name:  "text before first marker ignored",
			input: "preamble\n#Section Outlook\n#Page 4\nguidance",
			want:  []domain.Section{{Name: "Outlook", Page: 4, Content: "guidance"}},
		},
		{
			name:  "crlf line endings",
			input: "#Section Balance Sheet\r\n#Page 3\r\nassets\r\n\r\nliabilities\r\n#Section Notes\r\n#Page 4\r\nnote",
			want: []domain.Section{
				{Name: "Balance Sheet", Page: 3, Content: "assets\n\nliabilities"},
				{Name: "Notes", Page: 4, Content: "note"},
			},
		},
		{
			name:  "page zero becomes page one",
			input: "#Section Cover\n#Page 0\nwelcome",
			want:  []domain.Section{{Name: "Cover", Page: 1, Content: "welcome"}},
		},
		{
			name:  "overflowing page becomes page one",
			input: "#Section Cover\n#Page 99999999999999999999999\nwelcome",
			want:  []domain.Section{{Name: "Cover", Page: 1, Content: "welcome"}},
		},
		{
			name:  "no markers",
			input: "just some text",
			want:  nil,
		},
		{
			name:  "empty input",
			input: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.input))
		})
	}
}

func TestExtract_HeaderWithoutPageEndsPreviousSection(t *testing.T) {
	input := "#Section A\n#Page 1\nalpha\n#Section B without page\nlost\n#Section C\n#Page 3\ngamma"

	got := Extract(input)

	require.Len(t, got, 2)
	assert.Equal(t, "alpha", got[0].Content)
	assert.Equal(t, "C", got[1].Name)
	assert.Equal(t, "gamma", got[1].Content)
}

func TestNormalizeNewlines(t *testing.T) {
	assert.Equal(t, "a\nb\nc\n", NormalizeNewlines("a\r\nb\rc\n"))
	assert.Equal(t, "plain\n", NormalizeNewlines("plain\n"))
}

func TestNames(t *testing.T) {
	secs := []domain.Section{{Name: "Notes"}, {Name: "Balance Sheet"}, {Name: "Notes"}}
	assert.Equal(t, []string{"Notes", "Balance Sheet"}, Names(secs))
	assert.Nil(t, Names(nil))
}
