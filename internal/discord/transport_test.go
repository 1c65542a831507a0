package discord

import (
	"context"
	"net/http"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"suggestbot/pkg/chatapi"
)

const botID = "bot"

func restError(status int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: status, Status: http.StatusText(status)}}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil, chatapi.ErrNotFound))
	assert.ErrorIs(t, classify(restError(http.StatusNotFound), nil), chatapi.ErrNotFound)
	assert.ErrorIs(t, classify(restError(http.StatusForbidden), nil), chatapi.ErrForbidden)

	other := errors.New("boom")
	assert.Equal(t, other, classify(other, nil))
	assert.ErrorIs(t, classify(other, chatapi.ErrNotFound), chatapi.ErrNotFound)
}

func TestPostAndEditCard(t *testing.T) {
	s := &MockSession{}
	tr := NewTransport(s, botID)
	ctx := context.Background()
	card := chatapi.Card{Title: "Suggestion #1", Buttons: []chatapi.Button{{ID: "suggestion:up:1"}}}

	s.On("ChannelMessageSendComplex", "c1", mock.MatchedBy(func(m *discordgo.MessageSend) bool {
		return len(m.Embeds) == 1 && len(m.Components) == 1
	})).Return(&discordgo.Message{ID: "m1", ChannelID: "c1"}, nil).Once()
	h, err := tr.PostCard(ctx, "c1", card)
	require.NoError(t, err)
	assert.Equal(t, chatapi.MessageHandle{ChannelID: "c1", MessageID: "m1"}, h)

	s.On("ChannelMessageEditComplex", mock.MatchedBy(func(e *discordgo.MessageEdit) bool {
		return e.ID == "m1" && e.Channel == "c1" && len(*e.Embeds) == 1
	})).Return(nil, restError(http.StatusNotFound)).Once()
	err = tr.EditCard(ctx, h, card)
	assert.ErrorIs(t, err, chatapi.ErrNotFound)

	s.AssertExpectations(t)
}

func TestFetchCard(t *testing.T) {
	s := &MockSession{}
	tr := NewTransport(s, botID)
	h := chatapi.MessageHandle{ChannelID: "c1", MessageID: "m1"}

	s.On("ChannelMessage", "c1", "m1").Return(&discordgo.Message{ID: "m1"}, nil).Once()
	assert.NoError(t, tr.FetchCard(context.Background(), h))

	s.On("ChannelMessage", "c1", "m1").Return(nil, errors.New("timeout")).Once()
	assert.ErrorIs(t, tr.FetchCard(context.Background(), h), chatapi.ErrNotFound)
}

func TestSendDirect(t *testing.T) {
	s := &MockSession{}
	tr := NewTransport(s, botID)
	ctx := context.Background()

	s.On("UserChannelCreate", "u1").Return(&discordgo.Channel{ID: "dm1"}, nil)
	s.On("ChannelMessageSendComplex", "dm1", mock.MatchedBy(func(m *discordgo.MessageSend) bool {
		return m.Content == "hello" && len(m.Components) == 1
	})).Return(&discordgo.Message{ID: "m"}, nil).Once()
	err := tr.SendDirect(ctx, "u1", chatapi.DirectMessage{
		Content: "hello",
		Card:    &chatapi.Card{Buttons: []chatapi.Button{{Label: "Jump", URL: "https://x"}}},
	})
	require.NoError(t, err)

	s.On("UserChannelCreate", "closed").Return(nil, restError(http.StatusForbidden))
	err = tr.SendDirect(ctx, "closed", chatapi.DirectMessage{Content: "hello"})
	assert.ErrorIs(t, err, chatapi.ErrDeliveryFailed)
}

func TestResolveUser(t *testing.T) {
	s := &MockSession{}
	tr := NewTransport(s, botID)
	ctx := context.Background()

	s.On("GuildMember", "g1", "u1").Return(&discordgo.Member{User: &discordgo.User{ID: "u1", Username: "alice", GlobalName: "Alice"}}, nil)
	s.On("GuildMember", "g1", "gone").Return(nil, restError(http.StatusNotFound))

	u, err := tr.ResolveUser(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Name)
	assert.Equal(t, "<@u1>", u.Mention)
	assert.Equal(t, "Alice (u1)", u.Display())

	_, err = tr.ResolveUser(ctx, "g1", "gone")
	assert.ErrorIs(t, err, chatapi.ErrUnresolvable)
}

func TestResolveChannel(t *testing.T) {
	s := &MockSession{}
	tr := NewTransport(s, botID)
	ctx := context.Background()

	s.On("Channel", "c1").Return(&discordgo.Channel{ID: "c1", GuildID: "g1"}, nil)
	s.On("Channel", "other").Return(&discordgo.Channel{ID: "other", GuildID: "g2"}, nil)
	s.On("Channel", "gone").Return(nil, restError(http.StatusNotFound))

	s.On("UserChannelPermissions", botID, "c1").Return(int64(sendPermissions), nil).Once()
	ch, err := tr.ResolveChannel(ctx, "g1", "c1")
	require.NoError(t, err)
	assert.True(t, ch.CanSend)
	assert.Equal(t, "<#c1>", ch.Name)

	s.On("UserChannelPermissions", botID, "c1").Return(int64(discordgo.PermissionViewChannel), nil).Once()
	ch, err = tr.ResolveChannel(ctx, "g1", "c1")
	require.NoError(t, err)
	assert.False(t, ch.CanSend, "embeds need send and embed permissions")

	_, err = tr.ResolveChannel(ctx, "g1", "other")
	assert.ErrorIs(t, err, chatapi.ErrMissing, "channels of other guilds are not visible")
	_, err = tr.ResolveChannel(ctx, "g1", "gone")
	assert.ErrorIs(t, err, chatapi.ErrMissing)
}

func TestJumpURL(t *testing.T) {
	tr := NewTransport(&MockSession{}, botID)
	assert.Equal(t, "https://discord.com/channels/g1/c1/m1", tr.JumpURL("g1", chatapi.MessageHandle{ChannelID: "c1", MessageID: "m1"}))
	assert.Empty(t, tr.JumpURL("g1", chatapi.MessageHandle{}))
}
