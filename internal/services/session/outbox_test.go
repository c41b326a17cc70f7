package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/jobpilot/internal/models"
)

func receive(t *testing.T, ch <-chan models.ServerMessage) models.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscriber channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return models.ServerMessage{}
}

func TestOutbox_SequenceIsMonotonic(t *testing.T) {
	box := NewOutbox(16)
	for i := 0; i < 5; i++ {
		box.Push(models.MsgProgress, "", models.ProgressPayload{Text: fmt.Sprint(i)})
	}

	msgs := box.Drain(0)
	require.Len(t, msgs, 5)
	for i, msg := range msgs {
		assert.Equal(t, uint64(i+1), msg.Seq)
		assert.Equal(t, fmt.Sprint(i), msg.Payload.(models.ProgressPayload).Text)
	}
	assert.Equal(t, 0, box.Len())
	assert.Equal(t, uint64(5), box.LastSeq())
}

func TestOutbox_DrainHonoursMax(t *testing.T) {
	box := NewOutbox(16)
	for i := 0; i < 5; i++ {
		box.Push(models.MsgProgress, "", nil)
	}

	first := box.Drain(2)
	require.Len(t, first, 2)
	assert.Equal(t, uint64(2), first[1].Seq)

	rest := box.Drain(10)
	require.Len(t, rest, 3)
	assert.Equal(t, uint64(3), rest[0].Seq)
	assert.Empty(t, box.Drain(0))
}

func TestOutbox_EvictsFramesBeforeMessages(t *testing.T) {
	box := NewOutbox(3)
	box.Push(models.MsgProgress, "", nil)
	box.Push(models.MsgCheckpointFrame, "", nil)
	box.Push(models.MsgQuestion, "job", nil)
	box.Push(models.MsgState, "", nil)

	msgs := box.Drain(0)
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{models.MsgProgress, models.MsgQuestion, models.MsgState},
		[]string{msgs[0].Type, msgs[1].Type, msgs[2].Type})
	assert.Equal(t, uint64(1), box.Dropped())

	// no frames left: the oldest message goes
	box.Push(models.MsgProgress, "", nil)
	box.Push(models.MsgProgress, "", nil)
	box.Push(models.MsgProgress, "", nil)
	box.Push(models.MsgApplicationCompleted, "job", nil)
	msgs = box.Drain(0)
	require.Len(t, msgs, 3)
	assert.Equal(t, uint64(6), msgs[0].Seq)
	assert.Equal(t, models.MsgApplicationCompleted, msgs[2].Type)
}

func TestOutbox_SubscriberReceivesBacklogThenLive(t *testing.T) {
	box := NewOutbox(16)
	box.Push(models.MsgState, "", nil)
	box.Push(models.MsgProgress, "", nil)

	ch, cancel := box.Subscribe()
	defer cancel()
	assert.True(t, box.Attached())

	assert.Equal(t, uint64(1), receive(t, ch).Seq)
	assert.Equal(t, uint64(2), receive(t, ch).Seq)

	box.Push(models.MsgQuestion, "job-1", nil)
	msg := receive(t, ch)
	assert.Equal(t, uint64(3), msg.Seq)
	assert.Equal(t, "job-1", msg.JobID)

	require.Eventually(t, func() bool { return box.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestOutbox_UndeliveredMessagesSurviveDetach(t *testing.T) {
	box := NewOutbox(16)
	ch, cancel := box.Subscribe()
	box.Push(models.MsgProgress, "", nil)
	assert.Equal(t, uint64(1), receive(t, ch).Seq)

	assert.True(t, cancel())
	assert.False(t, cancel(), "second cancel is a no-op")
	assert.False(t, box.Attached())

	box.Push(models.MsgProgress, "", nil)
	box.Push(models.MsgProgress, "", nil)

	ch, cancel = box.Subscribe()
	defer cancel()
	assert.Equal(t, uint64(2), receive(t, ch).Seq)
	assert.Equal(t, uint64(3), receive(t, ch).Seq)
}

func TestOutbox_SubscribeReplacesPrevious(t *testing.T) {
	box := NewOutbox(16)
	first, cancelFirst := box.Subscribe()
	second, cancelSecond := box.Subscribe()
	defer cancelSecond()

	select {
	case _, ok := <-first:
		assert.False(t, ok, "replaced subscriber is closed")
	case <-time.After(2 * time.Second):
		t.Fatal("replaced subscriber was not closed")
	}
	assert.False(t, cancelFirst(), "replaced subscription is no longer current")
	assert.True(t, box.Attached())

	box.Push(models.MsgProgress, "", nil)
	assert.Equal(t, uint64(1), receive(t, second).Seq)
}
