package oauthflow

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBus_FanOut(t *testing.T) {
	bus := NewMessageBus()
	a, unsubA := bus.Subscribe()
	b, unsubB := bus.Subscribe()
	defer unsubA()
	defer unsubB()

	bus.Post(Message{Origin: testOrigin, Type: MessageSuccess})

	assert.Equal(t, MessageSuccess, (<-a).Type)
	assert.Equal(t, MessageSuccess, (<-b).Type)
}

func TestMessageBus_PostDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewMessageBus()
	_, unsub := bus.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer*3; i++ {
		bus.Post(Message{Type: MessageError})
	}
}

func TestMessageBus_UnsubscribeClosesOnce(t *testing.T) {
	bus := NewMessageBus()
	ch, unsub := bus.Subscribe()
	unsub()
	unsub()

	_, ok := <-ch
	assert.False(t, ok)
	bus.Post(Message{Type: MessageSuccess})
}

func TestMessageBus_States(t *testing.T) {
	bus := NewMessageBus()
	assert.False(t, bus.ValidState(""))
	assert.False(t, bus.ValidState("x"))

	bus.ExpectState("x")
	assert.True(t, bus.ValidState("x"))

	bus.ForgetState("x")
	assert.False(t, bus.ValidState("x"))
}

func TestPrintOpener(t *testing.T) {
	var buf bytes.Buffer
	w, err := PrintOpener{W: &buf}.Open(context.Background(), "https://auth.example/consent")
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "https://auth.example/consent")

	assert.False(t, w.Closed())
	require.NoError(t, w.Close())
	assert.True(t, w.Closed())
}

func TestFallbackOpener(t *testing.T) {
	blocked := OpenerFunc(func(context.Context, string) (Window, error) {
		return nil, errors.New("blocked")
	})
	var buf bytes.Buffer

	w, err := FallbackOpener{Primary: blocked, Secondary: PrintOpener{W: &buf}}.Open(context.Background(), "https://auth.example")
	require.NoError(t, err)
	assert.NotNil(t, w)
	assert.Contains(t, buf.String(), "https://auth.example")
}
