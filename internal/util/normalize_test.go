package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", NormalizeEmail("  A@X.com "))
	assert.Equal(t, "a@x.com", NormalizeEmail("a@x.com"))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "912345678", NormalizePhone("91 234-5678"))
	assert.Equal(t, "+351912345678", NormalizePhone("+351 (91) 234-5678"))
	assert.Equal(t, "912345678", NormalizePhone("912345678"))
}
