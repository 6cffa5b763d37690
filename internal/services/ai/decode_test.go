package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testInsight struct {
	Category string `json:"category" validate:"required,insight_category"`
	Title    string `json:"title" validate:"notblank"`
	Priority int    `json:"priority" validate:"min=1,max=5"`
}

type testBatch struct {
	Insights []testInsight `json:"insights" validate:"min=3,max=5,dive"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	valid := `{"insights":[
		{"category":"spending","title":"a","priority":1},
		{"category":"savings","title":"b","priority":2},
		{"category":"goal","title":"c","priority":3}]}`

	tests := []struct {
		name     string
		content  string
		wantErr  bool
		validate func(*testing.T, *testBatch)
	}{
		{
			name:    "plain JSON",
			content: valid,
			validate: func(t *testing.T, b *testBatch) {
				require.Len(t, b.Insights, 3)
				assert.Equal(t, "spending", b.Insights[0].Category)
			},
		},
		{
			name:    "fenced JSON with prose",
			content: "Here you go:\n```json\n" + valid + "\n```\nLet me know!",
			validate: func(t *testing.T, b *testBatch) {
				assert.Len(t, b.Insights, 3)
			},
		},
		{
			name:    "extra fields are ignored",
			content: `{"reasoning":"x","insights":[{"category":"debt","title":"a","priority":1,"extra":true},{"category":"debt","title":"b","priority":1},{"category":"debt","title":"c","priority":1}]}`,
		},
		{name: "too few insights", content: `{"insights":[{"category":"debt","title":"a","priority":1}]}`, wantErr: true},
		{name: "unknown category", content: `{"insights":[{"category":"x","title":"a","priority":1},{"category":"debt","title":"b","priority":1},{"category":"debt","title":"c","priority":1}]}`, wantErr: true},
		{name: "priority out of range", content: `{"insights":[{"category":"debt","title":"a","priority":9},{"category":"debt","title":"b","priority":1},{"category":"debt","title":"c","priority":1}]}`, wantErr: true},
		{name: "not JSON", content: "I cannot help with that.", wantErr: true},
		{name: "empty", content: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := DecodeJSON[testBatch](tt.content)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidOutput), "Expected ErrInvalidOutput, got %v", err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, got)
			}
		})
	}
}
