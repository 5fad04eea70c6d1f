package notify

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_DeliversInOrderToEventSubscribers(t *testing.T) {
	hub := NewHub(8)
	defer hub.Close()

	eventA, eventB := uuid.New(), uuid.New()
	subA, err := hub.Subscribe(eventA)
	require.NoError(t, err)
	subB, err := hub.Subscribe(eventB)
	require.NoError(t, err)

	hub.Publish(eventA,
		NewChange(eventA, EntitySubmission, OpInsert, map[string]string{"n": "1"}),
		NewChange(eventA, EntitySubmission, OpUpdate, map[string]string{"n": "2"}),
	)
	hub.Publish(eventB, NewChange(eventB, EntityNowPlaying, OpUpdate, nil))

	first := <-subA.C
	second := <-subA.C
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, OpInsert, first.Op)
	assert.JSONEq(t, `{"n":"2"}`, string(second.Payload))
	assert.False(t, first.At.IsZero())

	onlyB := <-subB.C
	assert.Equal(t, eventB, onlyB.EventID)
	assert.Equal(t, uint64(1), onlyB.Seq)
	assert.Len(t, subA.C, 0)

	assert.Equal(t, uint64(2), hub.LastSeq(eventA))
	assert.Equal(t, uint64(1), hub.LastSeq(eventB))
}

func TestHub_DropsLaggingSubscriber(t *testing.T) {
	hub := NewHub(2)
	defer hub.Close()
	eventID := uuid.New()

	slow, err := hub.Subscribe(eventID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		hub.Publish(eventID, NewChange(eventID, EntitySubmission, OpUpdate, i))
	}

	assert.True(t, slow.Lagged())
	assert.Equal(t, 0, hub.SubscriberCount(eventID))

	// buffered changes stay readable, then the channel reports closed
	<-slow.C
	<-slow.C
	_, open := <-slow.C
	assert.False(t, open)
}

func TestHub_UnsubscribeAndClose(t *testing.T) {
	hub := NewHub(4)
	eventID := uuid.New()

	sub, err := hub.Subscribe(eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, hub.SubscriberCount(eventID))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, hub.SubscriberCount(eventID))
	_, open := <-sub.C
	assert.False(t, open)
	assert.False(t, sub.Lagged())

	other, err := hub.Subscribe(eventID)
	require.NoError(t, err)
	hub.Close()
	_, open = <-other.C
	assert.False(t, open)

	_, err = hub.Subscribe(eventID)
	assert.ErrorIs(t, err, ErrHubClosed)
	assert.Nil(t, hub.Publish(eventID, NewChange(eventID, EntitySubmission, OpUpdate, nil)))
}

func TestHub_ForwardsOnlyLocalPublishes(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	eventID := uuid.New()

	var forwarded []Change
	hub.SetForwarder(func(changes []Change) {
		forwarded = append(forwarded, changes...)
	})

	hub.Publish(eventID, NewChange(eventID, EntitySubmission, OpInsert, nil))
	hub.Deliver(Change{EventID: eventID, Seq: 40, Entity: EntitySubmission, Op: OpUpdate})

	require.Len(t, forwarded, 1)
	assert.Equal(t, uint64(1), forwarded[0].Seq)
	// remote changes are resequenced locally
	assert.Equal(t, uint64(2), hub.LastSeq(eventID))
}
