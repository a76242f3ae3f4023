package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSessionID(t *testing.T) {
	assert.NoError(t, ValidateSessionID("sess-123_abc"))
	assert.Error(t, ValidateSessionID(""))
	assert.Error(t, ValidateSessionID("has spaces"))
	assert.Error(t, ValidateSessionID(strings.Repeat("x", 101)))
}

func TestValidateUserID(t *testing.T) {
	assert.NoError(t, ValidateUserID("user_42"))
	assert.Error(t, ValidateUserID(""))
	assert.Error(t, ValidateUserID("bad/id"))
}

func TestValidateDisplayName(t *testing.T) {
	assert.NoError(t, ValidateDisplayName("Alice Example"))
	assert.Error(t, ValidateDisplayName("   "))
	assert.Error(t, ValidateDisplayName(strings.Repeat("n", 81)))
}

func TestValidateColor(t *testing.T) {
	assert.NoError(t, ValidateColor("#fff"))
	assert.NoError(t, ValidateColor("#1a73e8"))
	assert.NoError(t, ValidateColor("#1a73e880"))
	assert.NoError(t, ValidateColor("transparent"))
	assert.Error(t, ValidateColor(""))
	assert.Error(t, ValidateColor("red"))
	assert.Error(t, ValidateColor("#12345"))
}

func TestValidateStrokeSize(t *testing.T) {
	assert.NoError(t, ValidateStrokeSize(4))
	assert.Error(t, ValidateStrokeSize(0))
	assert.Error(t, ValidateStrokeSize(-1))
	assert.Error(t, ValidateStrokeSize(500))
}
