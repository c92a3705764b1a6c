package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomchat/internal/models"
	"roomchat/internal/repositories"
	"roomchat/internal/ws"
)

type broadcast struct {
	room  models.Room
	event models.Event
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []broadcast
}

func (b *recordingBroadcaster) BroadcastToRoom(_ context.Context, room models.Room, event models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, broadcast{room: room, event: event})
}

func (b *recordingBroadcaster) ofType(t models.EventType) []broadcast {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcast
	for _, e := range b.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (n *recordingNotifier) Notify(_ context.Context, msg models.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

// fakeClock advances by step milliseconds on every read.
type fakeClock struct {
	mu   sync.Mutex
	ms   int64
	step int64
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.ms
	c.ms += c.step
	return time.UnixMilli(now)
}

func (c *fakeClock) Set(ms, step int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ms, c.step = ms, step
}

type harness struct {
	svc      *Service
	repo     *repositories.MemoryMessageRepo
	users    *repositories.MemoryUserRepo
	bcast    *recordingBroadcaster
	notifier *recordingNotifier
	clock    *fakeClock
}

func newHarness(t *testing.T, policy string) *harness {
	t.Helper()
	h := &harness{
		repo:     repositories.NewMemoryMessageRepo(),
		users:    repositories.NewMemoryUserRepo(models.Profile{UserID: "user-alice", Nickname: "alice", Avatar: "/a.png"}),
		bcast:    &recordingBroadcaster{},
		notifier: &recordingNotifier{},
		clock:    &fakeClock{ms: 1000, step: 1},
	}
	h.svc = NewService(h.repo, h.users, h.bcast, h.notifier, Options{OrphanReplyPolicy: policy, Now: h.clock.Now})
	t.Cleanup(h.svc.Wait)
	return h
}

func (h *harness) send(t *testing.T, room models.Room, mid, text string) models.Message {
	t.Helper()
	msg, err := h.svc.Create(context.Background(), CreateInput{Room: string(room), UserID: "user-alice", Text: text, MID: mid})
	require.NoError(t, err)
	return msg
}

func TestCreateStoresAndBroadcasts(t *testing.T) {
	h := newHarness(t, "")

	msg, err := h.svc.Create(context.Background(), CreateInput{Room: "weekday", UserID: "user-alice", Text: "  hello  "})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.MID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "alice", msg.Nickname)
	assert.Equal(t, "/a.png", msg.Avatar)
	assert.Equal(t, models.KindText, msg.Kind)
	assert.NotNil(t, msg.Reactions)

	events := h.bcast.ofType(models.EventNewMessage)
	require.Len(t, events, 1)
	assert.Equal(t, models.RoomWeekday, events[0].room)
	assert.Equal(t, msg, events[0].event.Data)

	h.svc.Wait()
	assert.Equal(t, 1, h.notifier.count())
}

func TestCreateIsIdempotentOnMID(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	first, err := h.svc.Create(ctx, CreateInput{Room: "weekday", UserID: "user-alice", Text: "hi", MID: "m1"})
	require.NoError(t, err)
	second, err := h.svc.Create(ctx, CreateInput{Room: "weekday", UserID: "user-alice", Text: "hi", MID: "m1"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.repo.Len())
	assert.Len(t, h.bcast.ofType(models.EventNewMessage), 1)

	h.svc.Wait()
	assert.Equal(t, 1, h.notifier.count())
}

func TestCreateDuplicateReturnsCurrentAvatar(t *testing.T) {
	h := newHarness(t, "")
	h.send(t, models.RoomAll, "m1", "hi")

	h.users.Put(models.Profile{UserID: "user-alice", Nickname: "alice2", Avatar: "/b.png"})
	again := h.send(t, models.RoomAll, "m1", "hi")

	assert.Equal(t, "/b.png", again.Avatar)
	assert.Equal(t, "alice", again.Nickname)
}

func TestCreateConcurrentSameMID(t *testing.T) {
	h := newHarness(t, "")

	var wg sync.WaitGroup
	results := make([]models.Message, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := h.svc.Create(context.Background(), CreateInput{Room: "all", UserID: "user-alice", Text: "race", MID: "same"})
			assert.NoError(t, err)
			results[i] = msg
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, h.repo.Len())
	assert.Len(t, h.bcast.ofType(models.EventNewMessage), 1)
	for _, r := range results {
		assert.Equal(t, results[0].TS, r.TS)
	}
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name  string
		in    CreateInput
		field string
	}{
		{"unknown room", CreateInput{Room: "lobby", UserID: "u", Text: "x"}, "room"},
		{"missing user", CreateInput{Room: "all", Text: "x"}, "userId"},
		{"malformed mid", CreateInput{Room: "all", UserID: "u", Text: "x", MID: "has space"}, "mid"},
		{"blank text", CreateInput{Room: "all", UserID: "u", Text: "   "}, "text"},
		{"malformed reply", CreateInput{Room: "all", UserID: "u", Text: "x", ReplyTo: "a/b"}, "replyTo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			_, err := h.svc.Create(context.Background(), tt.in)
			ve, ok := IsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, 0, h.repo.Len())
		})
	}
}

func TestCreateTruncatesLongText(t *testing.T) {
	h := newHarness(t, "")
	msg := h.send(t, models.RoomAll, "", strings.Repeat("가", MaxTextRunes+10))
	assert.Equal(t, MaxTextRunes, len([]rune(msg.Text)))
}

func TestCreateFallbackNickname(t *testing.T) {
	h := newHarness(t, "")
	msg, err := h.svc.Create(context.Background(), CreateInput{Room: "visiting", UserID: "guest-12345", Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "User-12345", msg.Nickname)
	assert.Empty(t, msg.Avatar)
}

func TestCreateTimestampsNeverGoBackwards(t *testing.T) {
	h := newHarness(t, "")
	h.clock.Set(5000, 0)
	first := h.send(t, models.RoomAll, "m1", "one")
	h.clock.Set(4000, 0)
	second := h.send(t, models.RoomAll, "m2", "two")

	assert.Equal(t, first.TS, second.TS)

	page, err := h.svc.History(context.Background(), HistoryQuery{Room: "all"})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, pageMIDs(page))
}

func TestCreateImage(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()

	msg, err := h.svc.CreateImage(ctx, ImageInput{
		Room: "weekend", UserID: "user-alice", MID: "img-1",
		MediaURL: "/uploads/abc.png", Size: 1024, FileName: "../../etc/cat.png", Mime: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, models.KindImage, msg.Kind)
	assert.Equal(t, "cat.png", msg.FileName)
	assert.Equal(t, "media", msg.Preview())

	again, err := h.svc.CreateImage(ctx, ImageInput{Room: "weekend", UserID: "user-alice", MID: "img-1"})
	require.NoError(t, err)
	assert.Equal(t, msg.TS, again.TS)
	assert.Len(t, h.bcast.ofType(models.EventNewMessage), 1)
}

func TestCreateImageValidation(t *testing.T) {
	base := ImageInput{Room: "weekend", UserID: "u", MID: "img", MediaURL: "/uploads/x.png", Size: 10, Mime: "image/png"}
	tests := []struct {
		name  string
		edit  func(*ImageInput)
		field string
	}{
		{"missing mid", func(in *ImageInput) { in.MID = "" }, "mid"},
		{"missing payload", func(in *ImageInput) { in.MediaURL = "" }, "mediaPayload"},
		{"too large", func(in *ImageInput) { in.Size = MaxImageBytes + 1 }, "mediaPayload"},
		{"not an image", func(in *ImageInput) { in.Mime = "application/pdf" }, "mimeType"},
		{"script url", func(in *ImageInput) { in.MediaURL = "javascript:alert(1)" }, "mediaPayload"},
		{"relative path", func(in *ImageInput) { in.MediaURL = "cat.png" }, "mediaPayload"},
		{"upload traversal", func(in *ImageInput) { in.MediaURL = "/uploads/../main.go" }, "mediaPayload"},
		{"non-image data url", func(in *ImageInput) { in.MediaURL = "data:text/html;base64,PHNjcmlwdD4=" }, "mediaPayload"},
		{"url without host", func(in *ImageInput) { in.MediaURL = "https:///cat.png" }, "mediaPayload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, "")
			in := base
			tt.edit(&in)
			_, err := h.svc.CreateImage(context.Background(), in)
			ve, ok := IsValidation(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateImageAcceptsPayloadForms(t *testing.T) {
	h := newHarness(t, "")
	payloads := []string{
		"/uploads/abc.png",
		"data:image/png;base64,iVBORw0KGgo=",
		"https://cdn.example.com/cat.webp",
		"http://10.0.0.5/cat.gif",
	}
	for i, payload := range payloads {
		msg, err := h.svc.CreateImage(context.Background(), ImageInput{
			Room: "all", UserID: "u", MID: fmt.Sprintf("img-%d", i),
			MediaURL: payload, Size: int64(len(payload)), Mime: "image/png",
		})
		require.NoError(t, err, payload)
		assert.Equal(t, payload, msg.MediaURL)
	}
}

func TestGet(t *testing.T) {
	h := newHarness(t, "")
	sent := h.send(t, models.RoomAll, "m1", "hi")

	got, err := h.svc.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, sent, got)

	_, err = h.svc.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, repositories.ErrMessageNotFound)
}

func TestRoomIsolation(t *testing.T) {
	h := newHarness(t, "")
	for i := 0; i < 5; i++ {
		h.send(t, models.RoomWeekday, fmt.Sprintf("wd-%d", i), "weekday")
		h.send(t, models.RoomWeekend, fmt.Sprintf("we-%d", i), "weekend")
	}

	page, err := h.svc.History(context.Background(), HistoryQuery{Room: "weekday"})
	require.NoError(t, err)
	require.Len(t, page.Messages, 5)
	for _, m := range page.Messages {
		assert.Equal(t, models.RoomWeekday, m.Room)
	}
	for _, b := range h.bcast.ofType(models.EventNewMessage) {
		assert.Equal(t, b.room, b.event.Data.(models.Message).Room)
	}
}

type stalledRelay struct {
	release chan struct{}
	mu      sync.Mutex
	rooms   []models.Room
}

func (r *stalledRelay) Publish(_ context.Context, room models.Room, _ []byte) error {
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
	return nil
}

func TestCreateDoesNotWaitOnStalledRelay(t *testing.T) {
	relay := &stalledRelay{release: make(chan struct{})}
	hub := ws.NewHub(relay)
	svc := NewService(repositories.NewMemoryMessageRepo(), repositories.NewMemoryUserRepo(), hub, nil, Options{})
	t.Cleanup(func() {
		close(relay.release)
		svc.Wait()
		hub.Close()
	})

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), CreateInput{Room: "weekday", UserID: "user-bob", Text: "hi", MID: fmt.Sprintf("m%d", i)})
			errs <- err
		}(i)
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("creates in one room waited on the relay")
	}
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	page, err := svc.History(context.Background(), HistoryQuery{Room: "weekday"})
	require.NoError(t, err)
	assert.Len(t, page.Messages, 4)
}
