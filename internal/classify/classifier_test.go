package classify

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantCategory string
		wantConf     float64
	}{
		{
			name:         "plain json",
			content:      `{"primary_category": "Energy", "confidence": 0.92, "reasoning": "wind farm permit"}`,
			wantCategory: "Energy",
			wantConf:     0.92,
		},
		{
			name: "fenced json",
			content: "```json\n" +
				`{"primary_category": "Manufacturing", "confidence": 0.8, "reasoning": "factory"}` +
				"\n```",
			wantCategory: "Manufacturing",
			wantConf:     0.8,
		},
		{
			name: "fence without language tag",
			content: "```\n" +
				`{"primary_category": "Infrastructure", "confidence": 0.75}` +
				"\n```",
			wantCategory: "Infrastructure",
			wantConf:     0.75,
		},
		{
			name:         "unknown category clamps to Other",
			content:      `{"primary_category": "Vindkraft", "confidence": 0.9}`,
			wantCategory: "Other",
			wantConf:     0.9,
		},
		{
			name:         "confidence above one clamps",
			content:      `{"primary_category": "Energy", "confidence": 1.4}`,
			wantCategory: "Energy",
			wantConf:     1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classification, err := parseReply(tt.content)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCategory, classification.PrimaryCategory)
			assert.InDelta(t, tt.wantConf, classification.Confidence, 1e-9)
			assert.False(t, classification.Failed())
		})
	}
}

func TestParseReplyMedlaFields(t *testing.T) {
	classification, err := parseReply(`{
		"primary_category": "Energy",
		"confidence": 0.9,
		"reasoning": "wind farm",
		"project_phase": "construction",
		"is_medla_suitable": true,
		"potential_jobs": ["electrician", "crane operator"]
	}`)
	require.NoError(t, err)

	require.NotNil(t, classification.ProjectPhase)
	assert.Equal(t, "construction", *classification.ProjectPhase)
	require.NotNil(t, classification.IsMedlaSuitable)
	assert.True(t, *classification.IsMedlaSuitable)
	assert.Equal(t, []string{"electrician", "crane operator"}, classification.PotentialJobs)
	assert.Equal(t, "wind farm", classification.Metadata["reasoning"])
}

func TestParseReplyUnknownPhaseOmitted(t *testing.T) {
	classification, err := parseReply(`{"primary_category": "Energy", "confidence": 0.9, "project_phase": "unknown"}`)
	require.NoError(t, err)
	assert.Nil(t, classification.ProjectPhase)
}

func TestParseReplyRejectsGarbage(t *testing.T) {
	_, err := parseReply("The project seems to be about wind power.")
	require.Error(t, err)
}

func TestParseFailureMarker(t *testing.T) {
	classification := parseFailure("failed to parse response", "raw text")
	assert.True(t, classification.Failed())
	assert.Zero(t, classification.Confidence)
	assert.Equal(t, "raw text", classification.Metadata["raw_response"])
}

func TestIsQuotaExhausted(t *testing.T) {
	assert.True(t, isQuotaExhausted(stderrors.New("error, status code: 429, message: You exceeded your current quota")))
	assert.True(t, isQuotaExhausted(stderrors.New("insufficient_quota")))
	assert.False(t, isQuotaExhausted(stderrors.New("error, status code: 429, message: Rate limit reached")))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripFences("json\n{\"a\":1}"))
}
