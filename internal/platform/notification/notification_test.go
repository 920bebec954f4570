package notification

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	s := NewLogSender(zerolog.New(&buf))

	err := s.SendEmail(context.Background(), Message{To: "nurse@hms.local", Subject: "Your code", Body: "123456"})
	require.NoError(t, err)

	sent := s.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "nurse@hms.local", sent[0].To)
	assert.True(t, strings.Contains(buf.String(), "email (not delivered)"))
}

func TestLogSender_RejectsBadRecipient(t *testing.T) {
	s := NewLogSender(zerolog.Nop())
	err := s.SendEmail(context.Background(), Message{To: "not an address"})
	assert.Error(t, err)
	assert.Empty(t, s.Sent())
}

func TestSendGridSender_RejectsBadRecipient(t *testing.T) {
	s := NewSendGridSender("SG.test", "no-reply@hms.local")
	err := s.SendEmail(context.Background(), Message{To: "@@"})
	assert.Error(t, err)
}
