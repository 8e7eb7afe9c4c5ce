package session

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewMessage_StampsIDAndTime(t *testing.T) {
	a := NewMessage(RoleUser, "I have a headache")
	b := NewMessage(RoleUser, "I have a headache")

	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
	require.False(t, a.Timestamp.IsZero())
	require.Equal(t, RoleUser, a.Role)
	require.Equal(t, "I have a headache", a.Content)
}

func TestLog_AppendKeepsOrder(t *testing.T) {
	var log Log
	first := NewMessage(RoleAssistant, "Hello")
	second := NewMessage(RoleUser, "Hi")
	third := NewMessage(RoleAssistant, "How can I help?")

	log.Append(first)
	log.Append(second)
	log.Append(third)

	require.Equal(t, 3, log.Len())
	require.Equal(t, []Message{first, second, third}, log.Messages())
}

func TestLog_MessagesReturnsCopy(t *testing.T) {
	var log Log
	log.Append(NewMessage(RoleUser, "original"))

	msgs := log.Messages()
	msgs[0].Content = "changed"

	require.Equal(t, "original", log.Messages()[0].Content)
}

func TestLog_AppendRejectsEmptyFields(t *testing.T) {
	var log Log

	require.Panics(t, func() { log.Append(Message{Role: RoleUser}) })
	require.Panics(t, func() { log.Append(Message{Content: "no role"}) })
	require.Equal(t, 0, log.Len())
}
