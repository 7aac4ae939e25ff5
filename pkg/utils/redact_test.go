package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bl4ck0w1/profilynx/pkg/utils"
)

func TestMaskSensitiveData(t *testing.T) {
	assert.Equal(t, "****", utils.MaskSensitiveData(""))
	assert.Equal(t, "****", utils.MaskSensitiveData("abcd"))
	assert.Equal(t, "se****23", utils.MaskSensitiveData("secret-123"))
}

func TestRedactSecretsMap(t *testing.T) {
	in := map[string]interface{}{
		"username": "ghost_runner",
		"api_key":  "super-secret",
		"nested": map[string]interface{}{
			"jwt_secret": "hmac-key",
			"endpoint":   "http://localhost:8087",
		},
	}

	out, ok := utils.RedactSecrets(in).(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, "ghost_runner", out["username"])
	assert.Equal(t, "[REDACTED]", out["api_key"])

	nested, ok := out["nested"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "[REDACTED]", nested["jwt_secret"])
	assert.Equal(t, "http://localhost:8087", nested["endpoint"])

	// input untouched
	assert.Equal(t, "super-secret", in["api_key"])
}

func TestRedactSecretsStruct(t *testing.T) {
	type creds struct {
		Endpoint string `json:"endpoint"`
		Token    string `json:"token"`
		hidden   string
	}

	out, ok := utils.RedactSecrets(creds{Endpoint: "https://api.example.com", Token: "abc", hidden: "x"}).(map[string]interface{})
	require.True(t, ok)

	assert.Equal(t, "https://api.example.com", out["endpoint"])
	assert.Equal(t, "[REDACTED]", out["token"])
	assert.NotContains(t, out, "hidden")
}

func TestRedactSecretsSliceAndNil(t *testing.T) {
	assert.Nil(t, utils.RedactSecrets(nil))

	out, ok := utils.RedactSecrets([]map[string]interface{}{
		{"password": "p"},
		{"note": "ok"},
	}).([]interface{})
	require.True(t, ok)
	require.Len(t, out, 2)

	first := out[0].(map[string]interface{})
	assert.Equal(t, "[REDACTED]", first["password"])
}
