package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"roomchat/internal/chat"
	"roomchat/internal/media"
	"roomchat/internal/models"
	"roomchat/internal/repositories"
)

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) Create(ctx context.Context, in chat.CreateInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) CreateImage(ctx context.Context, in chat.ImageInput) (models.Message, error) {
	args := m.Called(ctx, in)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) ExistingImage(ctx context.Context, room, userID, mid string) (models.Message, bool, error) {
	args := m.Called(ctx, room, userID, mid)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Bool(1), args.Error(2)
}

func (m *MessageServiceMock) Get(ctx context.Context, mid string) (models.Message, error) {
	args := m.Called(ctx, mid)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) ToggleReaction(ctx context.Context, mid, userID, emoji string) (models.Message, error) {
	args := m.Called(ctx, mid, userID, emoji)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageServiceMock) History(ctx context.Context, q chat.HistoryQuery) (models.HistoryPage, error) {
	args := m.Called(ctx, q)
	var page models.HistoryPage
	if val := args.Get(0); val != nil {
		page = val.(models.HistoryPage)
	}
	return page, args.Error(1)
}

type UploaderMock struct {
	mock.Mock
}

func (m *UploaderMock) Save(r io.Reader, originalName string) (media.Stored, error) {
	args := m.Called(r, originalName)
	var stored media.Stored
	if val := args.Get(0); val != nil {
		stored = val.(media.Stored)
	}
	return stored, args.Error(1)
}

func (m *UploaderMock) Remove(url string) error {
	args := m.Called(url)
	return args.Error(0)
}

type UserRepositoryMock struct {
	mock.Mock
}

var _ repositories.UserRepository = (*UserRepositoryMock)(nil)

func (m *UserRepositoryMock) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	args := m.Called(ctx, userID)
	var p models.Profile
	if val := args.Get(0); val != nil {
		p = val.(models.Profile)
	}
	return p, args.Error(1)
}

func (m *UserRepositoryMock) ListUserIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

type PingerMock struct {
	mock.Mock
}

func (m *PingerMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
