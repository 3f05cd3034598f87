package feed_test

import (
	"errors"
	"spacechat/backend/internal/feed"
	"spacechat/backend/internal/models"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadState_EqualIDIsNoOp(t *testing.T) {
	r := room(1, nil, member(1, 1, "Me", ptr(int64(5))), member(2, 1, "Bob", nil))
	rs := feed.NewReadState(r, 1)

	five := message(5, 1, 2, base)
	_, ok := rs.Mark(&five)
	assert.False(t, ok, "id equal to the stored marker is already read")

	six := message(6, 1, 2, base)
	id, ok := rs.Mark(&six)
	assert.True(t, ok)
	assert.Equal(t, int64(6), id)

	rs.Acknowledge(6, nil)
	assert.Equal(t, ptr(int64(6)), rs.Latest())
}

func TestReadState_Guards(t *testing.T) {
	r := room(1, nil, member(1, 1, "Me", nil))
	rs := feed.NewReadState(r, 1)

	_, ok := rs.Mark(nil)
	assert.False(t, ok, "no message")

	other := message(9, 2, 2, base)
	_, ok = rs.Mark(&other)
	assert.False(t, ok, "other room")

	pending := models.ChatMessage{ID: models.Pending("tmp"), ChatRoomID: 1}
	_, ok = rs.Mark(&pending)
	assert.False(t, ok, "pending id")

	outsider := feed.NewReadState(r, 42)
	msg := message(3, 1, 2, base)
	_, ok = outsider.Mark(&msg)
	assert.False(t, ok, "no membership")

	var nilState *feed.ReadState
	_, ok = nilState.Mark(&msg)
	assert.False(t, ok)

	_, ok = rs.Mark(&msg)
	assert.True(t, ok, "unset marker accepts any confirmed id")
}

func TestReadState_SuppressesDuplicateInFlightAndRetriesAfterFailure(t *testing.T) {
	rs := feed.NewReadState(room(1, nil, member(1, 1, "Me", nil)), 1)
	msg := message(7, 1, 2, base)

	_, ok := rs.Mark(&msg)
	assert.True(t, ok)
	_, ok = rs.Mark(&msg)
	assert.False(t, ok, "update for 7 is already in flight")

	rs.Acknowledge(7, errors.New("network"))
	assert.Nil(t, rs.Latest())

	_, ok = rs.Mark(&msg)
	assert.True(t, ok, "a failed update is attempted again on the next trigger")
}

func TestReadState_NeverDecreases(t *testing.T) {
	rs := feed.NewReadState(room(1, nil, member(1, 1, "Me", nil)), 1)
	var seen []int64
	for _, id := range []int64{3, 8, 2, 8, 5, 12, 11} {
		msg := message(id, 1, 2, base)
		if got, ok := rs.Mark(&msg); ok {
			rs.Acknowledge(got, nil)
		}
		seen = append(seen, *rs.Latest())
	}
	assert.Equal(t, []int64{3, 8, 8, 8, 8, 12, 12}, seen)
	// Acknowledging a lower id out of order must not regress the marker.
	rs.Acknowledge(4, nil)
	assert.Equal(t, int64(12), *rs.Latest())
}

func TestReadState_Observe(t *testing.T) {
	rs := feed.NewReadState(room(1, nil), 1)
	a := message(4, 1, 2, base)
	assert.True(t, rs.Observe(&a))
	assert.False(t, rs.Observe(&a))
	b := message(5, 1, 2, base)
	assert.True(t, rs.Observe(&b))
	assert.False(t, rs.Observe(nil))
}

func TestNewestFromOthers(t *testing.T) {
	msgs := []models.ChatMessage{
		{ID: models.Pending("tmp"), ChatRoomID: 1, SenderProfileID: ptr(int64(2))},
		message(9, 1, 1, base),
		message(8, 1, 2, base),
	}
	newest := feed.NewestFromOthers(msgs, 1)
	if assert.NotNil(t, newest) {
		assert.Equal(t, "8", newest.ID.String())
	}
	assert.Nil(t, feed.NewestFromOthers(msgs[:2], 1))
}
