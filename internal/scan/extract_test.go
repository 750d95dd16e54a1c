package scan

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON_ArrayInProse(t *testing.T) {
	text := "Sure! Here is the analysis:\n```json\n[\n  {\"materialName\": \"Rebar\", \"applications\": [\"slabs\"]}\n]\n```\nLet me know if you need more."
	v, ok := ExtractJSON(text)
	require.True(t, ok)

	arr, isArr := v.([]any)
	require.True(t, isArr)
	require.Len(t, arr, 1)
	assert.Equal(t, "Rebar", arr[0].(map[string]any)["materialName"])
}

func TestExtractJSON_RecoversExactArray(t *testing.T) {
	want := `[{"a":"x","b":["1","2"]},{"a":"y"}]`
	for _, wrap := range []string{"%s", "prefix %s", "%s suffix", "text\n\n%s\n\nmore text"} {
		text := fmt.Sprintf(wrap, want)
		v, ok := ExtractJSON(text)
		require.True(t, ok, text)
		got, err := json.Marshal(v)
		require.NoError(t, err)
		assert.JSONEq(t, want, string(got))
	}
}

func TestExtractJSON_PlainArrayOfScalars(t *testing.T) {
	v, ok := ExtractJSON("the answer is [1, 2, 3] overall")
	require.True(t, ok)
	assert.Equal(t, []any{json.Number("1"), json.Number("2"), json.Number("3")}, v)
}

func TestExtractJSON_ObjectWithWrapper(t *testing.T) {
	text := `{"found": 2, "toolsDetected": [{"detailedView": {"toolName": "Drill"}}, {"detailedView": {"toolName": "Saw"}}]}`
	v, ok := ExtractJSON(text)
	require.True(t, ok)

	// The inner array of objects is preferred over the enclosing object.
	arr, isArr := v.([]any)
	require.True(t, isArr)
	assert.Len(t, arr, 2)
}

func TestExtractJSON_ObjectWithScalarArrays(t *testing.T) {
	text := "Result: {\"materialName\": \"Drywall\", \"applications\": [\"walls\", \"ceilings\"]} done"
	v, ok := ExtractJSON(text)
	require.True(t, ok)
	obj, isObj := v.(map[string]any)
	require.True(t, isObj)
	assert.Equal(t, "Drywall", obj["materialName"])
}

func TestExtractJSON_TrailingGarbageAfterArray(t *testing.T) {
	text := `[{"toolName":"Hammer"}] and then } stray ]`
	v, ok := ExtractJSON(text)
	require.True(t, ok)
	arr := v.([]any)
	assert.Equal(t, "Hammer", arr[0].(map[string]any)["toolName"])
}

func TestExtractJSON_Failures(t *testing.T) {
	for _, text := range []string{
		"",
		"I cannot identify anything in this image.",
		"none",
		"{{{{",
		"[ broken, {\"a\": }",
		`{"unterminated": "value`,
	} {
		assert.NotPanics(t, func() {
			v, ok := ExtractJSON(text)
			assert.False(t, ok, text)
			assert.Nil(t, v)
		})
	}
}
