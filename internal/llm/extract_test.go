package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "flat output_text",
			body: `{"output_text":"  Hello there.  ","output":[{"content":[{"text":"ignored"}]}]}`,
			want: "Hello there.",
		},
		{
			name: "nested output parts joined with a space",
			body: `{"output":[{"content":[{"type":"output_text","text":"First part."},{"text":"Second part."}]},{"content":[{"text":"Third. "}]}]}`,
			want: "First part. Second part. Third.",
		},
		{
			name: "blank flat text falls through to parts",
			body: `{"output_text":"   ","output":[{"content":[{"text":"From parts"}]}]}`,
			want: "From parts",
		},
		{
			name: "legacy chat completion",
			body: `{"choices":[{"message":{"role":"assistant","content":"\nLegacy reply\n"}}]}`,
			want: "Legacy reply",
		},
		{
			name: "parts win over legacy",
			body: `{"output":[{"content":[{"text":"parts"}]}],"choices":[{"message":{"content":"legacy"}}]}`,
			want: "parts",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractText([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTextFailures(t *testing.T) {
	_, err := ExtractText([]byte(`{"output":[{"content":[{"text":"   "}]}],"choices":[]}`))
	assert.ErrorIs(t, err, ErrNoText)

	_, err = ExtractText([]byte(`{}`))
	assert.ErrorIs(t, err, ErrNoText)

	_, err = ExtractText([]byte(`not json`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoText)
}
