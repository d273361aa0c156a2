package chathistory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRoundTrip(t *testing.T) {
	roles := []Role{RoleSystem, RoleUser, RoleAssistant, RoleFunction}

	for _, role := range roles {
		parsed, err := ParseRole(int(role))
		require.NoError(t, err)
		assert.Equal(t, role, parsed)
	}

	assert.Equal(t, 0, int(RoleSystem))
	assert.Equal(t, 1, int(RoleUser))
	assert.Equal(t, 2, int(RoleAssistant))
	assert.Equal(t, 3, int(RoleFunction))
}

func TestParseRoleInvalid(t *testing.T) {
	for _, code := range []int{-1, 4, 42} {
		_, err := ParseRole(code)
		assert.ErrorIs(t, err, ErrInvalidRole, "code %d should be rejected", code)
	}
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "system", RoleSystem.String())
	assert.Equal(t, "user", RoleUser.String())
	assert.Equal(t, "assistant", RoleAssistant.String())
	assert.Equal(t, "function", RoleFunction.String())
	assert.Equal(t, "role(9)", Role(9).String())
}

func TestMessageJSON(t *testing.T) {
	content := NewMessage(RoleUser, "hello")
	encoded, err := json.Marshal(content)
	require.NoError(t, err)

	var decoded Message
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, content, decoded)
	assert.False(t, decoded.IsFunctionCall())

	call := NewFunctionCall(RoleAssistant, "react", `{"reaction_name":":thinking:"}`)
	encoded, err = json.Marshal(call)
	require.NoError(t, err)

	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, call, decoded)
	assert.True(t, decoded.IsFunctionCall())
}

func TestMessageJSONInvalidRole(t *testing.T) {
	var decoded Message
	err := json.Unmarshal([]byte(`{"role":7,"content":"hello"}`), &decoded)
	assert.ErrorIs(t, err, ErrInvalidRole)
}

func TestMessageText(t *testing.T) {
	assert.Equal(t, "hello", NewMessage(RoleUser, "hello").Text())
	assert.Equal(t, `react({"a":1})`, NewFunctionCall(RoleAssistant, "react", `{"a":1}`).Text())
}
