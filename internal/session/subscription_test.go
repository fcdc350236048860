package session

import (
	"errors"
	"testing"
	"time"

	"github.com/muurk/pettracer/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	frames []*protocol.Frame
	err    error
}

func (r *recordingSender) Send(frames ...*protocol.Frame) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, frames...)
	return nil
}

func TestSubscribeAssignsSequentialIDs(t *testing.T) {
	sender := &recordingSender{}
	subs := NewSubscriptions()

	got, err := subs.Subscribe(sender, DefaultDestinations...)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "sub-0", got[0].ID)
	assert.Equal(t, DestinationMessages, got[0].Destination)
	assert.Equal(t, "sub-1", got[1].ID)
	assert.Equal(t, DestinationPortal, got[1].Destination)
	for _, s := range got {
		assert.Equal(t, SubscriptionPending, s.State)
	}

	require.Len(t, sender.frames, 2)
	for i, f := range sender.frames {
		assert.Equal(t, protocol.CommandSubscribe, f.Command)
		assert.Equal(t, got[i].ID, f.Headers[protocol.HeaderID])
		assert.Equal(t, got[i].Destination, f.Destination())
	}

	more, err := subs.Subscribe(sender, "/topic/extra")
	require.NoError(t, err)
	assert.Equal(t, "sub-2", more[0].ID, "ids are monotonically increasing")
}

func TestSubscribeSendFailure(t *testing.T) {
	sender := &recordingSender{err: errors.New("broken pipe")}
	subs := NewSubscriptions()

	_, err := subs.Subscribe(sender, DestinationMessages)
	require.Error(t, err)
	assert.Empty(t, subs.Records(), "failed SUBSCRIBE must not be recorded")
}

func TestActivate(t *testing.T) {
	sender := &recordingSender{}
	subs := NewSubscriptions()

	require.NoError(t, subs.Activate(sender, []int{42, 7, 42}))
	require.Len(t, sender.frames, 1)

	f := sender.frames[0]
	assert.Equal(t, protocol.CommandSend, f.Command)
	assert.Equal(t, DestinationActivate, f.Destination())
	assert.Equal(t, `{"deviceIds":[7,42]}`, f.Body)
	assert.Equal(t, "20", f.Headers[protocol.HeaderContentLength])
}

func TestActivateEmptySetSendsEmptyArray(t *testing.T) {
	sender := &recordingSender{}
	require.NoError(t, NewSubscriptions().Activate(sender, nil))
	assert.Equal(t, `{"deviceIds":[]}`, sender.frames[0].Body)
}

func TestDeactivate(t *testing.T) {
	sender := &recordingSender{}
	subs := NewSubscriptions()

	require.NoError(t, subs.Deactivate(sender, nil))
	assert.Empty(t, sender.frames, "nothing to deactivate")

	require.NoError(t, subs.Deactivate(sender, []int{5}))
	require.Len(t, sender.frames, 1)
	assert.Equal(t, DestinationDeactivate, sender.frames[0].Destination())
	assert.Equal(t, `{"deviceIds":[5]}`, sender.frames[0].Body)
}

func TestMatchActivatesOnFirstMessage(t *testing.T) {
	sender := &recordingSender{}
	subs := NewSubscriptions()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	subs.now = func() time.Time { return fixed }

	_, err := subs.Subscribe(sender, DefaultDestinations...)
	require.NoError(t, err)

	var notified []Subscription
	subs.Observe(func(s Subscription) { notified = append(notified, s) })

	msg := &protocol.Frame{
		Command: protocol.CommandMessage,
		Headers: protocol.Headers{protocol.HeaderSubscription: "sub-1", protocol.HeaderDestination: DestinationPortal},
	}

	got, ok := subs.Match(msg)
	require.True(t, ok)
	assert.Equal(t, "sub-1", got.ID)
	assert.Equal(t, SubscriptionActive, got.State)
	assert.Equal(t, fixed, got.ActivatedAt)

	_, ok = subs.Match(msg)
	require.True(t, ok)
	assert.Len(t, notified, 1, "observers are told once per subscription")

	records := subs.Records()
	assert.Equal(t, SubscriptionPending, records[0].State)
	assert.Equal(t, SubscriptionActive, records[1].State)
}

func TestMatchFallsBackToDestination(t *testing.T) {
	subs := NewSubscriptions()
	_, err := subs.Subscribe(&recordingSender{}, DefaultDestinations...)
	require.NoError(t, err)

	got, ok := subs.Match(&protocol.Frame{
		Command: protocol.CommandMessage,
		Headers: protocol.Headers{protocol.HeaderDestination: DestinationMessages},
	})
	require.True(t, ok)
	assert.Equal(t, "sub-0", got.ID)

	_, ok = subs.Match(&protocol.Frame{
		Command: protocol.CommandMessage,
		Headers: protocol.Headers{protocol.HeaderDestination: "/unknown"},
	})
	assert.False(t, ok)
}
