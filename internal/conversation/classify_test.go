// ABOUTME: Tests for message classification and first-reply capture
// ABOUTME: Table-driven over termination sentinels and empty content

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/hercules-gateway/internal/runtime"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		content    string
		hasContent bool
		want       Class
	}{
		{"TERMINATE", true, ClassTermination},
		{"  terminate\n", true, ClassTermination},
		{"Terminate", true, ClassTermination},
		{"terminate later", true, ClassOrdinary},
		{"All done. TERMINATE", true, ClassOrdinary},
		{"hello", true, ClassOrdinary},
		{"", true, ClassIgnored},
		{" \t\n", true, ClassIgnored},
		{"TERMINATE", false, ClassIgnored},
	}

	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.content, tt.hasContent))
		})
	}
}

func TestIsTerminationMessage(t *testing.T) {
	assert.True(t, IsTerminationMessage(runtime.Event{Content: "TERMINATE"}))
	assert.True(t, IsTerminationMessage(runtime.Event{Content: "All done. terminate  "}))
	assert.False(t, IsTerminationMessage(runtime.Event{Content: "terminate later"}))
	assert.False(t, IsTerminationMessage(runtime.Event{}))
}

func TestFirstReply(t *testing.T) {
	t.Run("first substantive assistant turn", func(t *testing.T) {
		reply := FirstReply([]runtime.Turn{
			{Sender: "UserProxy", Role: runtime.RoleUser, Content: "prompt"},
			{Sender: "Assistant", Role: runtime.RoleAssistant, Content: "hello"},
			{Sender: "Assistant", Role: runtime.RoleAssistant, Content: "TERMINATE"},
		})
		require.NotNil(t, reply)
		assert.Equal(t, "hello", *reply)
	})

	t.Run("only empty and sentinel", func(t *testing.T) {
		reply := FirstReply([]runtime.Turn{
			{Sender: "Assistant", Role: runtime.RoleAssistant, Content: ""},
			{Sender: "Assistant", Role: runtime.RoleAssistant, Content: "TERMINATE"},
		})
		assert.Nil(t, reply)
	})

	t.Run("skips proxy turns", func(t *testing.T) {
		reply := FirstReply([]runtime.Turn{
			{Sender: "UserProxy", Role: runtime.RoleUser, Content: "not a reply"},
		})
		assert.Nil(t, reply)
	})

	t.Run("trims captured content", func(t *testing.T) {
		reply := FirstReply([]runtime.Turn{
			{Sender: "Assistant", Role: runtime.RoleAssistant, Content: "  spaced out \n"},
		})
		require.NotNil(t, reply)
		assert.Equal(t, "spaced out", *reply)
	})
}

func TestClass_String(t *testing.T) {
	assert.Equal(t, "ordinary", ClassOrdinary.String())
	assert.Equal(t, "termination", ClassTermination.String())
	assert.Equal(t, "ignored", ClassIgnored.String())
}
