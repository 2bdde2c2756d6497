package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, result.Errors)
		})
	}
}

func TestMarshalSnapshot_OmitsRunVerdict(t *testing.T) {
	r := NewResult()
	r.AddStep(OpAdvance, map[string]any{"by": "1h0m0s"})
	r.AddError("ignored")

	data, err := MarshalSnapshot("tiny", r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"scenario": "tiny",
		"steps": [{"seq": 1, "op": "advance", "result": {"by": "1h0m0s"}}],
		"final": {"matches": [], "remaining": {}, "notifications": []}
	}`, string(data))
	assert.NotContains(t, string(data), "ignored")
	assert.Equal(t, byte('\n'), data[len(data)-1])
}
