// Package feed implements the message feed of one viewer: backward
// pagination, live updates, optimistic sends and read-state tracking.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"spacechat/backend/internal/config"
	"spacechat/backend/internal/models"
	"spacechat/backend/internal/taskqueue"
	"strings"
	"sync"
	"time"
)

// Backend is the remote data source of the feed.
type Backend interface {
	ChatRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error)
	Messages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error)
	SendMessage(ctx context.Context, msg models.NewMessage) (*models.ChatMessage, error)
	UpdateLatestRead(ctx context.Context, profileID, roomID, messageID int64) error
	SubscribeMessages(ctx context.Context, roomID int64, since time.Time) (<-chan []models.ChatMessage, error)
}

// Cache keeps rooms and pages for serving the feed while the backend is down.
type Cache interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CachedRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error)
	SaveMessages(ctx context.Context, messages []models.ChatMessage) error
	CachedMessages(ctx context.Context, roomID, idCap int64, limit int) ([]models.ChatMessage, error)
}

// Outbox records sends that failed for good.
type Outbox interface {
	RecordFailedSend(ctx context.Context, entry *models.OutboxEntry) error
}

// Listener receives every event of a controller. It is called from the
// caller's goroutine or from the queue worker and must not block.
type Listener func(models.FeedEvent)

// Options tune a Controller. Zero values fall back to the defaults in config.
type Options struct {
	PageSize int
	Policy   taskqueue.Policy
	Cache    Cache
	Outbox   Outbox
	// OnConfirmed is called after a send of the viewer is confirmed.
	OnConfirmed func(models.ChatMessage)
	Now         func() time.Time
}

// Controller is the feed state machine of one viewer. All methods are safe
// for concurrent use.
type Controller struct {
	backend Backend
	viewer  int64
	opts    Options
	queue   *taskqueue.Queue

	mu           sync.Mutex
	generation   uint64
	room         *models.ChatRoom
	cursor       Cursor
	messages     []models.ChatMessage
	read         *ReadState
	loading      bool
	stale        bool
	streamCancel context.CancelFunc
	listeners    map[int]Listener
	nextListener int
	closed       bool
}

// NewController creates a feed for the viewer profile.
func NewController(backend Backend, viewer int64, opts Options) *Controller {
	switch {
	case opts.PageSize <= 0:
		opts.PageSize = config.DefaultPageSize
	case opts.PageSize < config.MinPageSize:
		// Сторінка з одного повідомлення ніколи не зсуне курсор.
		opts.PageSize = config.MinPageSize
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = taskqueue.Policy{
			Timeout:     config.QueueTaskTimeout,
			MaxAttempts: config.QueueMaxAttempts,
			BaseBackoff: config.QueueBaseBackoff,
			MaxBackoff:  config.QueueMaxBackoff,
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		backend:   backend,
		viewer:    viewer,
		opts:      opts,
		queue:     taskqueue.New(opts.Policy),
		listeners: make(map[int]Listener),
	}
}

// Viewer returns the profile id the feed belongs to.
func (c *Controller) Viewer() int64 { return c.viewer }

// RoomID returns the open room, or 0.
func (c *Controller) RoomID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cursor.RoomID()
}

// Subscribe registers l for feed events and returns a function removing it.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = l
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Open switches the feed to roomID. It resets pagination, loads the room and
// its newest page, and starts the live stream. A room the backend does not
// know yet leaves the feed in the loading state. Rooms the viewer is not a
// member of are rejected with ErrNotMember.
func (c *Controller) Open(ctx context.Context, roomID int64) error {
	if roomID <= 0 {
		return ErrNoRoom
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.stopStreamLocked()
	c.generation++
	gen := c.generation
	c.cursor.Reset(roomID)
	c.room = nil
	c.messages = nil
	c.read = nil
	c.loading = true
	c.stale = false
	c.mu.Unlock()
	c.emitSnapshot()

	room, staleRoom, err := c.loadRoom(ctx, roomID)
	if err != nil {
		c.finishLoading(gen)
		return fmt.Errorf("load room %d: %w", roomID, err)
	}
	if room == nil {
		return nil
	}
	if MyMembership(room, c.viewer) == nil {
		c.mu.Lock()
		if gen == c.generation {
			c.cursor.Reset(0)
			c.loading = false
		}
		c.mu.Unlock()
		c.emitSnapshot()
		return fmt.Errorf("room %d: %w", roomID, ErrNotMember)
	}

	page, stalePage, err := c.fetchPage(ctx, roomID, config.DefaultIDCap)
	if err != nil {
		c.finishLoading(gen)
		return fmt.Errorf("load messages of room %d: %w", roomID, err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	c.room = room
	c.read = NewReadState(room, c.viewer)
	c.messages = Merge(nil, page)
	c.loading = false
	c.stale = staleRoom || stalePage
	since := c.opts.Now()
	if len(c.messages) > 0 {
		since = c.messages[0].CreatedAt
	}
	streamCtx, cancel := context.WithCancel(context.Background())
	c.streamCancel = cancel
	c.checkReadLocked(false)
	c.mu.Unlock()

	stream, err := c.backend.SubscribeMessages(streamCtx, roomID, since)
	if err != nil {
		log.Printf("WARN: live stream for room %d unavailable: %v", roomID, err)
	} else {
		go c.consume(gen, roomID, stream)
	}
	c.emitSnapshot()
	return nil
}

// FetchMore loads the page of messages preceding the oldest loaded one.
// It does nothing when no room is open or the first message is loaded.
func (c *Controller) FetchMore(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.room == nil || c.loading || NoMoreMessages(c.messages, c.room.FirstMessageID()) {
		c.mu.Unlock()
		return nil
	}
	if !c.cursor.FetchMore(c.messages) {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	roomID := c.room.ID
	idCap := c.cursor.IDCap()
	c.loading = true
	c.mu.Unlock()
	c.emitSnapshot()

	page, stale, err := c.fetchPage(ctx, roomID, idCap)
	if err != nil {
		c.finishLoading(gen)
		return fmt.Errorf("load messages of room %d below %d: %w", roomID, idCap, err)
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return nil
	}
	c.messages = Merge(c.messages, page)
	c.loading = false
	c.stale = c.stale || stale
	c.mu.Unlock()
	c.emitSnapshot()
	return nil
}

// Send posts text to the open room. The message shows up at once with a
// pending id and is confirmed or dropped once the queued send finishes.
func (c *Controller) Send(text string) (models.MessageID, error) {
	if strings.TrimSpace(text) == "" {
		return models.MessageID{}, ErrEmptyMessage
	}
	if c.viewer <= 0 {
		return models.MessageID{}, ErrNoProfile
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.MessageID{}, ErrClosed
	}
	if c.room == nil {
		c.mu.Unlock()
		return models.MessageID{}, ErrNoRoom
	}
	gen := c.generation
	viewer := c.viewer
	pending := models.ChatMessage{
		ID:              models.NewPendingID(),
		ChatRoomID:      c.room.ID,
		SenderProfileID: &viewer,
		Text:            text,
		CreatedAt:       c.opts.Now(),
	}
	c.messages = Merge(c.messages, []models.ChatMessage{pending})
	c.mu.Unlock()
	c.emitSnapshot()

	var confirmed *models.ChatMessage
	c.queue.Enqueue("send "+pending.ID.String(), func(ctx context.Context) error {
		msg, err := c.backend.SendMessage(ctx, models.NewMessage{
			ChatRoomID:      pending.ChatRoomID,
			SenderProfileID: viewer,
			Text:            text,
		})
		if err != nil {
			// Вставка могла вже пройти на сервері, повтор дав би дубль.
			return taskqueue.Permanent(err)
		}
		if msg == nil {
			return taskqueue.Permanent(errors.New("send message: empty response"))
		}
		confirmed = msg
		return nil
	}, func(res taskqueue.Result) {
		c.finishSend(gen, pending, confirmed, res)
	})
	return pending.ID, nil
}

// Focus re-checks the read marker when the renderer regains the foreground.
func (c *Controller) Focus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.checkReadLocked(true)
}

// Snapshot returns the current render state.
func (c *Controller) Snapshot() models.FeedSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Close stops the live stream and waits for queued work to drain or ctx to
// expire.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopStreamLocked()
	c.mu.Unlock()
	return c.queue.Close(ctx)
}

func (c *Controller) snapshotLocked() models.FeedSnapshot {
	snap := models.FeedSnapshot{
		RoomID:      c.cursor.RoomID(),
		IDCap:       c.cursor.IDCap(),
		Loading:     c.loading,
		Stale:       c.stale,
		QueuedTasks: c.queue.Len(),
	}
	if c.room == nil {
		return snap
	}
	snap.Participants = ChatParticipants(c.room)
	snap.Title = ChatRoomTitle(snap.Participants, c.viewer)
	snap.Subtitle = ChatRoomSubtitle(c.room, snap.Participants, c.viewer)
	snap.Messages = append([]models.ChatMessage(nil), c.messages...)
	snap.NoMoreMessages = NoMoreMessages(c.messages, c.room.FirstMessageID())
	if id, ok := DeliveredMessageID(c.messages, c.viewer); ok {
		snap.DeliveredMessageID = &id
	}
	snap.Groups = RenderGroups(c.messages, c.viewer, c.opts.Now())
	return snap
}

func (c *Controller) emit(ev models.FeedEvent) {
	c.mu.Lock()
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		l(ev)
	}
}

func (c *Controller) emitSnapshot() {
	snap := c.Snapshot()
	c.emit(models.FeedEvent{Type: models.EventSnapshot, Snapshot: &snap})
}

func (c *Controller) finishLoading(gen uint64) {
	c.mu.Lock()
	if gen == c.generation {
		c.loading = false
	}
	c.mu.Unlock()
	c.emitSnapshot()
}

func (c *Controller) stopStreamLocked() {
	if c.streamCancel != nil {
		c.streamCancel()
		c.streamCancel = nil
	}
}

// loadRoom asks the backend for the room, falling back to the cache.
func (c *Controller) loadRoom(ctx context.Context, roomID int64) (*models.ChatRoom, bool, error) {
	room, err := c.backend.ChatRoom(ctx, roomID)
	if err == nil {
		if room != nil && c.opts.Cache != nil {
			if cerr := c.opts.Cache.SaveRoom(ctx, room); cerr != nil {
				log.Printf("WARN: failed to cache room %d: %v", roomID, cerr)
			}
		}
		return room, false, nil
	}
	if c.opts.Cache == nil {
		return nil, false, err
	}
	cached, cerr := c.opts.Cache.CachedRoom(ctx, roomID)
	if cerr != nil || cached == nil {
		return nil, false, err
	}
	log.Printf("WARN: backend unavailable, serving cached room %d: %v", roomID, err)
	return cached, true, nil
}

// fetchPage loads one page at or below idCap, falling back to the cache.
func (c *Controller) fetchPage(ctx context.Context, roomID, idCap int64) ([]models.ChatMessage, bool, error) {
	page, err := c.backend.Messages(ctx, roomID, idCap, c.opts.PageSize)
	if err == nil {
		c.cacheMessages(ctx, page)
		return page, false, nil
	}
	if c.opts.Cache == nil {
		return nil, false, err
	}
	cached, cerr := c.opts.Cache.CachedMessages(ctx, roomID, idCap, c.opts.PageSize)
	if cerr != nil {
		log.Printf("ERROR: message cache read for room %d failed: %v", roomID, cerr)
		return nil, false, err
	}
	log.Printf("WARN: backend unavailable, serving %d cached messages of room %d: %v", len(cached), roomID, err)
	return cached, true, nil
}

func (c *Controller) cacheMessages(ctx context.Context, messages []models.ChatMessage) {
	if c.opts.Cache == nil || len(messages) == 0 {
		return
	}
	if err := c.opts.Cache.SaveMessages(ctx, messages); err != nil {
		log.Printf("WARN: failed to cache %d messages: %v", len(messages), err)
	}
}

// consume applies pushed batches until the stream ends.
func (c *Controller) consume(gen uint64, roomID int64, stream <-chan []models.ChatMessage) {
	for batch := range stream {
		var fresh []models.ChatMessage
		for _, m := range batch {
			if m.ChatRoomID == roomID {
				fresh = append(fresh, m)
			}
		}
		if len(fresh) == 0 {
			continue
		}

		c.mu.Lock()
		if gen != c.generation || c.closed {
			c.mu.Unlock()
			return
		}
		c.messages = Merge(c.messages, fresh)
		c.checkReadLocked(false)
		c.mu.Unlock()

		c.cacheMessages(context.Background(), fresh)
		c.emitSnapshot()
	}
}

// checkReadLocked marks the newest message from another participant as read.
// Without force it only acts when that message changed since the last check.
func (c *Controller) checkReadLocked(force bool) {
	if c.read == nil || c.room == nil || c.closed {
		return
	}
	newest := NewestFromOthers(c.messages, c.viewer)
	if changed := c.read.Observe(newest); !changed && !force {
		return
	}
	id, ok := c.read.Mark(newest)
	if !ok {
		return
	}
	gen := c.generation
	roomID := c.room.ID
	viewer := c.viewer
	c.queue.Enqueue(fmt.Sprintf("read room %d message %d", roomID, id), func(ctx context.Context) error {
		return c.backend.UpdateLatestRead(ctx, viewer, roomID, id)
	}, func(res taskqueue.Result) {
		c.finishRead(gen, id, res)
	})
}

func (c *Controller) finishRead(gen uint64, id int64, res taskqueue.Result) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.read.Acknowledge(id, res.Err)
	if res.OK() {
		if m := MyMembership(c.room, c.viewer); m != nil {
			m.LatestReadChatMessageID = c.read.Latest()
		}
	}
	c.mu.Unlock()
	if res.OK() {
		c.emitSnapshot()
	}
}

func (c *Controller) finishSend(gen uint64, pending models.ChatMessage, confirmed *models.ChatMessage, res taskqueue.Result) {
	if res.OK() && confirmed != nil {
		c.mu.Lock()
		if gen == c.generation {
			c.messages = Merge(RemoveMessage(c.messages, pending.ID), []models.ChatMessage{*confirmed})
		}
		c.mu.Unlock()
		c.cacheMessages(context.Background(), []models.ChatMessage{*confirmed})
		if c.opts.OnConfirmed != nil {
			c.opts.OnConfirmed(*confirmed)
		}
		c.emitSnapshot()
		return
	}

	c.mu.Lock()
	if gen == c.generation {
		c.messages = RemoveMessage(c.messages, pending.ID)
	}
	c.mu.Unlock()
	log.Printf("ERROR: send of %s to room %d failed: %v", pending.ID, pending.ChatRoomID, res.Err)

	if c.opts.Outbox != nil {
		timeout := c.opts.Policy.Timeout
		if timeout <= 0 {
			timeout = config.QueueTaskTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		entry := &models.OutboxEntry{
			ClientTempID:    pending.ID.ClientTempID(),
			ChatRoomID:      pending.ChatRoomID,
			SenderProfileID: c.viewer,
			Text:            pending.Text,
			Attempts:        res.Attempts,
			LastError:       errText(res.Err),
		}
		if err := c.opts.Outbox.RecordFailedSend(ctx, entry); err != nil {
			log.Printf("ERROR: failed to record outbox entry %s: %v", pending.ID, err)
		}
		cancel()
	}

	c.emit(models.FeedEvent{
		Type:         models.EventSendFailed,
		ClientTempID: pending.ID.ClientTempID(),
		Error:        errText(res.Err),
	})
	c.emitSnapshot()
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
