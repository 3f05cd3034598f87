package chathub

import (
	"context"
	"log"
	"spacechat/backend/internal/models"
	"spacechat/backend/internal/storage"
)

// StartPubSubListener запускає Goroutine, яка слухає Redis Pub/Sub усіх кімнат
// і передає події у ActivityCh.
func (m *ManagerService) StartPubSubListener(ctx context.Context) {
	go func() {
		pubsub := m.Storage.SubscribeToAllRooms(ctx)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				activity, err := storage.ParseRoomActivity(msg)
				if err != nil {
					log.Printf("Error decoding Redis room activity: %v", err)
					continue
				}
				m.Publish(ctx, activity)
			}
		}
	}()
}

// Publish hands activity to the hub loop.
func (m *ManagerService) Publish(ctx context.Context, activity models.RoomActivity) {
	select {
	case m.ActivityCh <- activity:
	case <-ctx.Done():
	}
}

// ActivityFromMessage builds the room activity announced for a confirmed message.
func ActivityFromMessage(msg models.ChatMessage) (models.RoomActivity, bool) {
	id, ok := msg.ID.ServerID()
	if !ok {
		return models.RoomActivity{}, false
	}
	return models.RoomActivity{
		RoomID:          msg.ChatRoomID,
		MessageID:       id,
		SenderProfileID: msg.SenderProfileID,
		Text:            msg.Text,
		CreatedAt:       msg.CreatedAt,
	}, true
}

// AnnounceConfirmed returns a hook for feed.Options.OnConfirmed that
// publishes every confirmed send to the other gateway instances.
func (m *ManagerService) AnnounceConfirmed() func(models.ChatMessage) {
	return func(msg models.ChatMessage) {
		activity, ok := ActivityFromMessage(msg)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if m.Storage == nil {
			// без Redis подія лишається в межах цього процесу
			m.Publish(ctx, activity)
			return
		}
		if err := m.Storage.PublishRoomActivity(ctx, activity); err != nil {
			log.Printf("ERROR: failed to publish activity of room %d: %v", activity.RoomID, err)
		}
	}
}
