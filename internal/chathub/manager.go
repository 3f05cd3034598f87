package chathub

import (
	"context"
	"errors"
	"log"
	"spacechat/backend/internal/feed"
	"spacechat/backend/internal/kvstore"
	"spacechat/backend/internal/models"
	"spacechat/backend/internal/storage"
	"spacechat/backend/internal/telegram"
	"strconv"
	"time"
)

const (
	// Присутність оновлюється частіше, ніж спливає.
	presenceTTL     = 90 * time.Second
	presenceRefresh = 30 * time.Second
	noticeClaimTTL  = 24 * time.Hour
)

func presenceKey(profileID int64) string { return "presence:" + strconv.FormatInt(profileID, 10) }

func noticeKey(messageID, profileID int64) string {
	return "notice:" + strconv.FormatInt(messageID, 10) + ":" + strconv.FormatInt(profileID, 10)
}

// RoomLookup loads the room an activity belongs to.
type RoomLookup interface {
	ChatRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error)
}

// resolvedActivity is an activity together with the room it happened in.
type resolvedActivity struct {
	activity models.RoomActivity
	room     *models.ChatRoom
}

// ManagerService тримає реєстр підключених глядачів і розсилає їм події кімнат.
type ManagerService struct {
	// Clients групує з'єднання за профілем: один профіль може мати кілька вкладок.
	Clients map[int64]map[Client]struct{}

	// Channels
	RegisterCh   chan Client
	UnregisterCh chan Client
	ActivityCh   chan models.RoomActivity

	Storage  storage.Storage
	Rooms    RoomLookup
	Notifier telegram.Notifier
	// Presence is shared by all gateway instances: it holds who is connected
	// anywhere and which offline notices were already claimed.
	Presence kvstore.Store

	resolvedCh    chan resolvedActivity
	stopped       chan struct{}
	lookupTimeout time.Duration
}

// NewManagerService creates a hub. A nil notifier disables offline notices;
// a nil presence store keeps presence local to this instance.
func NewManagerService(s storage.Storage, rooms RoomLookup, notifier telegram.Notifier, presence kvstore.Store) *ManagerService {
	if notifier == nil {
		notifier = telegram.Nop{}
	}
	if presence == nil {
		presence = kvstore.NewMemoryStore()
	}
	return &ManagerService{
		Clients:       make(map[int64]map[Client]struct{}),
		RegisterCh:    make(chan Client),
		UnregisterCh:  make(chan Client),
		ActivityCh:    make(chan models.RoomActivity, 64),
		Storage:       s,
		Rooms:         rooms,
		Notifier:      notifier,
		Presence:      presence,
		resolvedCh:    make(chan resolvedActivity, 64),
		stopped:       make(chan struct{}),
		lookupTimeout: 10 * time.Second,
	}
}

// Run is the hub loop. It owns Clients and returns when ctx is cancelled.
func (m *ManagerService) Run(ctx context.Context) {
	defer close(m.stopped)
	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, set := range m.Clients {
				for client := range set {
					client.Close()
				}
			}
			m.Clients = make(map[int64]map[Client]struct{})
			return

		case client := <-m.RegisterCh:
			set, ok := m.Clients[client.GetProfileID()]
			if !ok {
				set = make(map[Client]struct{})
				m.Clients[client.GetProfileID()] = set
			}
			set[client] = struct{}{}
			log.Printf("INFO: profile %d connected (%d connections)", client.GetProfileID(), len(set))
			go m.markPresent(ctx, []int64{client.GetProfileID()})

		case <-ticker.C:
			if len(m.Clients) == 0 {
				continue
			}
			profiles := make([]int64, 0, len(m.Clients))
			for id := range m.Clients {
				profiles = append(profiles, id)
			}
			go m.markPresent(ctx, profiles)

		case client := <-m.UnregisterCh:
			m.unregister(client)

		case activity := <-m.ActivityCh:
			// кімнату вантажимо поза циклом, щоб не блокувати реєстрацію
			go m.resolve(ctx, activity)

		case r := <-m.resolvedCh:
			m.deliver(ctx, r.activity, r.room)
		}
	}
}

// Register adds client to the hub. It returns false once the hub has stopped.
func (m *ManagerService) Register(client Client) bool {
	select {
	case m.RegisterCh <- client:
		return true
	case <-m.stopped:
		return false
	}
}

// Unregister removes client from the hub and closes it.
func (m *ManagerService) Unregister(client Client) {
	select {
	case m.UnregisterCh <- client:
	case <-m.stopped:
		client.Close()
	}
}

func (m *ManagerService) unregister(client Client) {
	set, ok := m.Clients[client.GetProfileID()]
	if !ok {
		return
	}
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(m.Clients, client.GetProfileID())
	}
	client.Close()
	log.Printf("INFO: profile %d disconnected", client.GetProfileID())
}

func (m *ManagerService) resolve(ctx context.Context, activity models.RoomActivity) {
	lookupCtx, cancel := context.WithTimeout(ctx, m.lookupTimeout)
	defer cancel()

	room, err := m.Rooms.ChatRoom(lookupCtx, activity.RoomID)
	if err != nil {
		log.Printf("ERROR: failed to load room %d for activity: %v", activity.RoomID, err)
		return
	}
	if room == nil {
		log.Printf("WARN: activity for unknown room %d", activity.RoomID)
		return
	}
	select {
	case m.resolvedCh <- resolvedActivity{activity: activity, room: room}:
	case <-ctx.Done():
	}
}

// deliver sends activity to every connected member of room and notifies the
// members that are offline and now have an unread message.
func (m *ManagerService) deliver(ctx context.Context, activity models.RoomActivity, room *models.ChatRoom) {
	applyActivity(room, activity)
	participants := feed.ChatParticipants(room)

	for _, membership := range room.Memberships {
		profileID := membership.ProfileID
		set, online := m.Clients[profileID]
		if !online {
			if feed.ShouldHighlightChatRoom(room, 0, profileID) {
				go m.notifyIfAway(ctx, activity.MessageID, noticeFor(room, participants, activity, profileID))
			}
			continue
		}
		for client := range set {
			ev := models.FeedEvent{
				Type:      models.EventRoomActivity,
				Activity:  &activity,
				Highlight: feed.ShouldHighlightChatRoom(room, client.GetRoomID(), profileID),
			}
			select {
			case client.GetSendChannel() <- ev:
			default:
				log.Printf("WARN: dropping room activity for slow client of profile %d", profileID)
			}
		}
	}
}

// markPresent records that profiles have a connection on this instance.
// Keys are not removed on disconnect; they expire after presenceTTL.
func (m *ManagerService) markPresent(ctx context.Context, profiles []int64) {
	for _, id := range profiles {
		if err := m.Presence.Set(ctx, presenceKey(id), "1", presenceTTL); err != nil {
			log.Printf("WARN: failed to refresh presence of profile %d: %v", id, err)
		}
	}
}

// notifyIfAway sends n unless the profile is connected to some instance or
// another instance already claimed the notice for this message.
func (m *ManagerService) notifyIfAway(ctx context.Context, messageID int64, n telegram.Notice) {
	_, err := m.Presence.Get(ctx, presenceKey(n.ProfileID))
	switch {
	case err == nil:
		return
	case !errors.Is(err, kvstore.ErrMiss):
		log.Printf("ERROR: presence lookup for profile %d: %v", n.ProfileID, err)
		return
	}

	claimed, err := m.Presence.SetNX(ctx, noticeKey(messageID, n.ProfileID), "1", noticeClaimTTL)
	if err != nil {
		log.Printf("ERROR: claiming notice of message %d for profile %d: %v", messageID, n.ProfileID, err)
		return
	}
	if !claimed {
		return
	}
	m.notify(ctx, n)
}

func (m *ManagerService) notify(ctx context.Context, n telegram.Notice) {
	err := m.Notifier.Notify(ctx, n)
	switch {
	case err == nil:
	case errors.Is(err, telegram.ErrNotLinked):
	default:
		log.Printf("ERROR: failed to notify profile %d about room %d: %v", n.ProfileID, n.RoomID, err)
	}
}

// applyActivity makes the activity the latest message of room unless the
// room already knows a newer one.
func applyActivity(room *models.ChatRoom, activity models.RoomActivity) {
	if latest := room.LatestMessageID(); latest != nil && *latest >= activity.MessageID {
		return
	}
	room.LatestChatMessage = &models.ChatMessage{
		ID:              models.Confirmed(activity.MessageID),
		ChatRoomID:      activity.RoomID,
		SenderProfileID: activity.SenderProfileID,
		Text:            activity.Text,
		CreatedAt:       activity.CreatedAt,
	}
}

func noticeFor(room *models.ChatRoom, participants []models.ChatParticipant, activity models.RoomActivity, profileID int64) telegram.Notice {
	n := telegram.Notice{
		ProfileID: profileID,
		RoomID:    room.ID,
		RoomTitle: feed.ChatRoomTitle(participants, profileID),
		Text:      activity.Text,
	}
	if activity.SenderProfileID != nil {
		for _, p := range participants {
			if p.ProfileID == *activity.SenderProfileID {
				n.SenderName = p.FullName
				break
			}
		}
	}
	return n
}
