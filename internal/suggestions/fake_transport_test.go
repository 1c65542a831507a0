package suggestions

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/mock"

	"suggestbot/internal/locales"
	"suggestbot/pkg/chatapi"
)

func TestMain(m *testing.M) {
	if err := locales.Init("en"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeTransport is an in-memory chat platform. Fields ending in Err make the
// matching call fail.
type fakeTransport struct {
	mu sync.Mutex

	channels map[string]chatapi.Channel
	users    map[string]chatapi.UserIdentity
	cards    map[chatapi.MessageHandle]chatapi.Card
	posts    []post
	directs  map[string][]chatapi.DirectMessage
	deleted  []chatapi.MessageHandle
	nextMsg  int

	postErr   map[string]error // by channel id
	editErr   error
	directErr error
}

type post struct {
	ChannelID string
	Card      chatapi.Card
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		channels: map[string]chatapi.Channel{},
		users:    map[string]chatapi.UserIdentity{},
		cards:    map[chatapi.MessageHandle]chatapi.Card{},
		directs:  map[string][]chatapi.DirectMessage{},
		postErr:  map[string]error{},
	}
}

func (f *fakeTransport) addChannel(guildID, id string, canSend bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[id] = chatapi.Channel{ID: id, GuildID: guildID, Name: "#" + id, CanSend: canSend}
}

func (f *fakeTransport) removeChannel(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.channels, id)
}

func (f *fakeTransport) addUser(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = chatapi.UserIdentity{ID: id, Name: name, Mention: "<@" + id + ">"}
}

func (f *fakeTransport) dropCard(h chatapi.MessageHandle) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.cards, h)
}

func (f *fakeTransport) card(h chatapi.MessageHandle) chatapi.Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cards[h]
}

func (f *fakeTransport) postsTo(channelID string) []chatapi.Card {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []chatapi.Card
	for _, p := range f.posts {
		if p.ChannelID == channelID {
			out = append(out, p.Card)
		}
	}
	return out
}

func (f *fakeTransport) directsTo(userID string) []chatapi.DirectMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chatapi.DirectMessage(nil), f.directs[userID]...)
}

func (f *fakeTransport) PostCard(_ context.Context, channelID string, card chatapi.Card) (chatapi.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.postErr[channelID]; err != nil {
		return chatapi.MessageHandle{}, err
	}
	if _, ok := f.channels[channelID]; !ok {
		return chatapi.MessageHandle{}, chatapi.ErrMissing
	}
	f.nextMsg++
	h := chatapi.MessageHandle{ChannelID: channelID, MessageID: fmt.Sprintf("m%d", f.nextMsg)}
	f.cards[h] = card
	f.posts = append(f.posts, post{ChannelID: channelID, Card: card})
	return h, nil
}

func (f *fakeTransport) EditCard(_ context.Context, h chatapi.MessageHandle, card chatapi.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	if _, ok := f.cards[h]; !ok {
		return chatapi.ErrNotFound
	}
	f.cards[h] = card
	return nil
}

func (f *fakeTransport) FetchCard(_ context.Context, h chatapi.MessageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cards[h]; !ok {
		return chatapi.ErrNotFound
	}
	return nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, h chatapi.MessageHandle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, h)
	return nil
}

func (f *fakeTransport) SendDirect(_ context.Context, userID string, msg chatapi.DirectMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.directErr != nil {
		return f.directErr
	}
	f.directs[userID] = append(f.directs[userID], msg)
	return nil
}

func (f *fakeTransport) ResolveUser(_ context.Context, _, userID string) (chatapi.UserIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return chatapi.UserIdentity{}, chatapi.ErrUnresolvable
	}
	return u, nil
}

func (f *fakeTransport) ResolveChannel(_ context.Context, guildID, channelID string) (chatapi.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok || ch.GuildID != guildID {
		return chatapi.Channel{}, chatapi.ErrMissing
	}
	return ch, nil
}

func (f *fakeTransport) JumpURL(guildID string, h chatapi.MessageHandle) string {
	if h.IsZero() {
		return ""
	}
	return fmt.Sprintf("https://chat.example/%s/%s/%s", guildID, h.ChannelID, h.MessageID)
}

// MockReporter records reported errors.
type MockReporter struct {
	mock.Mock
}

func (m *MockReporter) CaptureException(err error) *sentry.EventID {
	m.Called(err)
	return nil
}
