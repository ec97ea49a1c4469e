package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret("  "))
	assert.Equal(t, "****", MaskSecret("abc"))
	assert.Equal(t, "****WXYZ", MaskSecret("ABCD-EFGH-WXYZ"))
}

func TestMaskMetadata(t *testing.T) {
	out := MaskMetadata(map[string]any{
		"username": "alice",
		"password": "hunter22",
		"nested": map[string]any{
			"recovery_key": "AAAA-BBBB-CCCC-DDDD",
			"count":        3,
		},
	})

	assert.Equal(t, "alice", out["username"])
	assert.Equal(t, "****", out["password"])
	nested := out["nested"].(map[string]any)
	assert.Equal(t, "****DDDD", nested["recovery_key"])
	assert.Equal(t, 3, nested["count"])
	assert.Nil(t, MaskMetadata(nil))
}
