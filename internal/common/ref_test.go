package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRef_StableAndOpaque(t *testing.T) {
	id := "6f1c3a52-9a8b-4c1d-8e2f-0b7a1d2c3e4f"

	assert.Equal(t, Ref(id), Ref(id))
	assert.Len(t, Ref(id), 12)
	assert.NotContains(t, Ref(id), id[:8])
	assert.NotEqual(t, Ref(id), Ref("other"))
}
