package mailer

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMail struct {
	addr string
	auth smtp.Auth
	from string
	to   []string
	msg  string
}

func newTestSender(cfg SMTPConfig, sent *[]sentMail, err error) *SMTPSender {
	s := NewSMTPSender(cfg)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		if err != nil {
			return err
		}
		*sent = append(*sent, sentMail{addr: addr, auth: a, from: from, to: to, msg: string(msg)})
		return nil
	}
	return s
}

func TestSMTPSender_Send(t *testing.T) {
	var sent []sentMail
	sender := newTestSender(SMTPConfig{
		Host:     "smtp.forum.test",
		Port:     2525,
		Username: "mailer",
		Password: "secret",
		From:     "noreply@forum.test",
	}, &sent, nil)

	err := sender.Send(context.Background(), "member@forum.test", "Password Reset Request", "line one\nline two")
	require.NoError(t, err)
	require.Len(t, sent, 1)

	assert.Equal(t, "smtp.forum.test:2525", sent[0].addr)
	assert.NotNil(t, sent[0].auth)
	assert.Equal(t, "noreply@forum.test", sent[0].from)
	assert.Equal(t, []string{"member@forum.test"}, sent[0].to)
	assert.Contains(t, sent[0].msg, "Subject: Password Reset Request\r\n")
	assert.True(t, strings.HasSuffix(sent[0].msg, "line one\r\nline two"))
}

func TestSMTPSender_NoAuth(t *testing.T) {
	var sent []sentMail
	sender := newTestSender(SMTPConfig{Host: "localhost", Port: 25, From: "noreply@forum.test"}, &sent, nil)

	require.NoError(t, sender.Send(context.Background(), "member@forum.test", "hi", "body"))
	require.Len(t, sent, 1)
	assert.Nil(t, sent[0].auth)
}

func TestSMTPSender_Errors(t *testing.T) {
	var sent []sentMail

	t.Run("header injection", func(t *testing.T) {
		sender := newTestSender(SMTPConfig{Host: "localhost", Port: 25}, &sent, nil)
		assert.Error(t, sender.Send(context.Background(), "a@forum.test\r\nBcc: evil@forum.test", "hi", "body"))
		assert.Error(t, sender.Send(context.Background(), "a@forum.test", "hi\nthere", "body"))
		assert.Empty(t, sent)
	})

	t.Run("relay failure", func(t *testing.T) {
		sender := newTestSender(SMTPConfig{Host: "localhost", Port: 25}, &sent, errors.New("connection refused"))
		assert.Error(t, sender.Send(context.Background(), "a@forum.test", "hi", "body"))
	})

	t.Run("cancelled context", func(t *testing.T) {
		sender := newTestSender(SMTPConfig{Host: "localhost", Port: 25}, &sent, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.Error(t, sender.Send(ctx, "a@forum.test", "hi", "body"))
		assert.Empty(t, sent)
	})
}

func TestBuildMessage(t *testing.T) {
	msg := string(BuildMessage("from@forum.test", "to@forum.test", "Subject", "a\nb"))

	assert.True(t, strings.HasPrefix(msg, "From: from@forum.test\r\nTo: to@forum.test\r\nSubject: Subject\r\n"))
	assert.Contains(t, msg, "Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	assert.True(t, strings.HasSuffix(msg, "a\r\nb"))
}
