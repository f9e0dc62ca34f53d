package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/wavechat/wavechat-backend/internal/common"
	"github.com/wavechat/wavechat-backend/internal/domain"
)

// --- Repository mocks ---

type mockUserRepo struct{ mock.Mock }

func (m *mockUserRepo) FindByID(id uint64) (*domain.User, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepo) FindByIDs(ids []uint64) ([]*domain.User, error) {
	args := m.Called(ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *mockUserRepo) List() ([]*domain.User, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *mockUserRepo) SetOnline(id uint64, online bool, lastSeen time.Time) error {
	args := m.Called(id, online, lastSeen)
	return args.Error(0)
}

type mockChatRepo struct{ mock.Mock }

func (m *mockChatRepo) Create(chat *domain.Chat) error {
	args := m.Called(chat)
	if args.Error(0) == nil && chat.ID == 0 {
		chat.ID = 100
	}
	return args.Error(0)
}

func (m *mockChatRepo) FindByID(id uint64) (*domain.Chat, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chat), args.Error(1)
}

func (m *mockChatRepo) FindDirectByKey(key string) (*domain.Chat, error) {
	args := m.Called(key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Chat), args.Error(1)
}

func (m *mockChatRepo) ListByUser(userID uint64) ([]*domain.Chat, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Chat), args.Error(1)
}

func (m *mockChatRepo) ListChatIDsByUser(userID uint64) ([]uint64, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uint64), args.Error(1)
}

func (m *mockChatRepo) AddMember(member *domain.ChatMember) error {
	args := m.Called(member)
	return args.Error(0)
}

func (m *mockChatRepo) ListMembers(chatID uint64) ([]*domain.ChatMember, error) {
	args := m.Called(chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ChatMember), args.Error(1)
}

func (m *mockChatRepo) IsMember(chatID, userID uint64) (bool, error) {
	args := m.Called(chatID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockChatRepo) TouchActivity(chatID uint64, at time.Time) error {
	args := m.Called(chatID, at)
	return args.Error(0)
}

func (m *mockChatRepo) UpdateLastRead(chatID, userID uint64, at time.Time) error {
	args := m.Called(chatID, userID, at)
	return args.Error(0)
}

type mockMessageRepo struct{ mock.Mock }

func (m *mockMessageRepo) Create(msg *domain.Message) error {
	args := m.Called(msg)
	if args.Error(0) == nil && msg.ID == 0 {
		msg.ID = 500
		msg.CreatedAt = time.Now()
	}
	return args.Error(0)
}

func (m *mockMessageRepo) FindByID(id uint64) (*domain.Message, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *mockMessageRepo) ListByChatPaged(chatID uint64, limit, offset int) ([]*domain.Message, error) {
	args := m.Called(chatID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *mockMessageRepo) SearchInChats(chatIDs []uint64, query string, limit int) ([]*domain.Message, error) {
	args := m.Called(chatIDs, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *mockMessageRepo) AddReceipt(receipt *domain.MessageReceipt) error {
	args := m.Called(receipt)
	return args.Error(0)
}

func (m *mockMessageRepo) ListReceipts(messageID uint64) ([]*domain.MessageReceipt, error) {
	args := m.Called(messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.MessageReceipt), args.Error(1)
}

func (m *mockMessageRepo) ListUnread(chatID, userID uint64, fallbackLimit int) ([]*domain.Message, error) {
	args := m.Called(chatID, userID, fallbackLimit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

type mockModLogRepo struct{ mock.Mock }

func (m *mockModLogRepo) Create(log *domain.ModerationLog) error {
	args := m.Called(log)
	return args.Error(0)
}

func newService() (*ChatService, *mockUserRepo, *mockChatRepo, *mockMessageRepo, *mockModLogRepo) {
	users := new(mockUserRepo)
	chats := new(mockChatRepo)
	messages := new(mockMessageRepo)
	modLogs := new(mockModLogRepo)
	return NewChatService(users, chats, messages, modLogs), users, chats, messages, modLogs
}

// --- Direct chats ---

func TestGetOrCreateDirectChatReusesExisting(t *testing.T) {
	svc, _, chats, _, _ := newService()
	key := domain.DirectKeyFor(2, 1)
	existing := &domain.Chat{ID: 42, DirectKey: &key}
	chats.On("FindDirectByKey", key).Return(existing, nil)

	chat, reused, err := svc.GetOrCreateDirectChat(2, 1)

	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, uint64(42), chat.ID)
	chats.AssertNotCalled(t, "Create", mock.Anything)
}

func TestGetOrCreateDirectChatCreatesWithBothMembers(t *testing.T) {
	svc, _, chats, _, _ := newService()
	key := domain.DirectKeyFor(1, 2)
	chats.On("FindDirectByKey", key).Return(nil, gorm.ErrRecordNotFound)
	chats.On("Create", mock.AnythingOfType("*domain.Chat")).Return(nil)
	chats.On("AddMember", mock.AnythingOfType("*domain.ChatMember")).Return(nil).Twice()
	chats.On("FindByID", uint64(100)).Return(&domain.Chat{ID: 100, DirectKey: &key}, nil)

	chat, reused, err := svc.GetOrCreateDirectChat(1, 2)

	require.NoError(t, err)
	assert.False(t, reused)
	assert.Equal(t, uint64(100), chat.ID)
	chats.AssertNumberOfCalls(t, "AddMember", 2)
}

func TestGetOrCreateDirectChatLostRaceResolvesToWinner(t *testing.T) {
	svc, _, chats, _, _ := newService()
	key := domain.DirectKeyFor(1, 2)
	winner := &domain.Chat{ID: 77, DirectKey: &key}

	// First lookup misses, insert hits the unique direct_key, second lookup
	// finds the concurrently created chat.
	chats.On("FindDirectByKey", key).Return(nil, gorm.ErrRecordNotFound).Once()
	chats.On("Create", mock.AnythingOfType("*domain.Chat")).Return(errors.New("Duplicate entry"))
	chats.On("FindDirectByKey", key).Return(winner, nil).Once()

	chat, reused, err := svc.GetOrCreateDirectChat(1, 2)

	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, uint64(77), chat.ID)
}

func TestGetOrCreateDirectChatRejectsSelf(t *testing.T) {
	svc, _, _, _, _ := newService()

	_, _, err := svc.GetOrCreateDirectChat(5, 5)

	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

// --- Group chats ---

func TestCreateGroupChatAddsCreatorAndMembersOnce(t *testing.T) {
	svc, _, chats, _, _ := newService()
	chats.On("Create", mock.AnythingOfType("*domain.Chat")).Return(nil)
	chats.On("AddMember", mock.AnythingOfType("*domain.ChatMember")).Return(nil)
	chats.On("FindByID", uint64(100)).Return(&domain.Chat{ID: 100, IsGroup: true}, nil)

	// Creator repeated in the member list must not be added twice
	chat, err := svc.CreateGroupChat(1, "team", []uint64{1, 2, 3})

	require.NoError(t, err)
	assert.True(t, chat.IsGroup)
	chats.AssertNumberOfCalls(t, "AddMember", 3)
}

// --- Receipts ---

func TestMarkReadAddsReceiptAndBumpsLastRead(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	messages.On("AddReceipt", mock.MatchedBy(func(r *domain.MessageReceipt) bool {
		return r.MessageID == 10 && r.UserID == 2 && r.Kind == domain.ReceiptRead
	})).Return(nil)
	chats.On("UpdateLastRead", uint64(5), uint64(2), mock.AnythingOfType("time.Time")).Return(nil)

	err := svc.MarkRead(5, 10, 2)

	require.NoError(t, err)
	chats.AssertCalled(t, "UpdateLastRead", uint64(5), uint64(2), mock.AnythingOfType("time.Time"))
}

func TestMarkSeenSkipsFailedIDs(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	messages.On("AddReceipt", mock.MatchedBy(func(r *domain.MessageReceipt) bool {
		return r.MessageID == 11
	})).Return(errors.New("db error"))
	messages.On("AddReceipt", mock.AnythingOfType("*domain.MessageReceipt")).Return(nil)
	chats.On("UpdateLastRead", uint64(5), uint64(2), mock.AnythingOfType("time.Time")).Return(nil)

	seen := svc.MarkSeen(5, 2, []uint64{10, 11, 12})

	assert.Equal(t, []uint64{10, 12}, seen)
	chats.AssertNumberOfCalls(t, "UpdateLastRead", 1)
}

func TestMarkSeenRepeatIsIdempotent(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	// A duplicate (message, user, kind) insert hits the unique receipt key
	// and resolves to a nil-error no-op, so a re-sent seen batch succeeds
	// end to end without growing the stored sets.
	messages.On("AddReceipt", mock.AnythingOfType("*domain.MessageReceipt")).Return(nil)
	chats.On("UpdateLastRead", uint64(5), uint64(2), mock.AnythingOfType("time.Time")).Return(nil)

	first := svc.MarkSeen(5, 2, []uint64{10, 11})
	second := svc.MarkSeen(5, 2, []uint64{10, 11})

	assert.Equal(t, []uint64{10, 11}, first)
	assert.Equal(t, []uint64{10, 11}, second)
	messages.AssertNumberOfCalls(t, "AddReceipt", 4)
}

func TestMarkSeenAllFailedSkipsLastRead(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	messages.On("AddReceipt", mock.AnythingOfType("*domain.MessageReceipt")).Return(errors.New("db error"))

	seen := svc.MarkSeen(5, 2, []uint64{10, 11})

	assert.Empty(t, seen)
	chats.AssertNotCalled(t, "UpdateLastRead", mock.Anything, mock.Anything, mock.Anything)
}

// --- Fetch ---

func TestFetchMessagesAttachesReceiptSets(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	chats.On("IsMember", uint64(5), uint64(1)).Return(true, nil)
	page := []*domain.Message{{ID: 1, ChatID: 5}, {ID: 2, ChatID: 5}}
	messages.On("ListByChatPaged", uint64(5), DefaultFetchLimit, 0).Return(page, nil)
	messages.On("ListReceipts", uint64(1)).Return([]*domain.MessageReceipt{
		{MessageID: 1, UserID: 2, Kind: domain.ReceiptDelivered},
		{MessageID: 1, UserID: 2, Kind: domain.ReceiptRead},
	}, nil)
	messages.On("ListReceipts", uint64(2)).Return([]*domain.MessageReceipt{}, nil)

	// limit <= 0 falls back to the default page size
	out, err := svc.FetchMessages(5, 1, 0, 0)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []uint64{2}, out[0].DeliveredTo)
	assert.Equal(t, []uint64{2}, out[0].ReadBy)
	assert.Empty(t, out[1].DeliveredTo)
}

func TestFetchMessagesRequiresMembership(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	chats.On("IsMember", uint64(5), uint64(9)).Return(false, nil)

	_, err := svc.FetchMessages(5, 9, 0, 0)

	assert.ErrorIs(t, err, common.ErrNotChatMember)
	messages.AssertNotCalled(t, "ListByChatPaged", mock.Anything, mock.Anything, mock.Anything)
}

// --- Search ---

func TestSearchMessagesScopedToUserChats(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	chats.On("ListChatIDsByUser", uint64(1)).Return([]uint64{5, 6}, nil)
	found := []*domain.Message{{ID: 3, ChatID: 5, Content: "project deadline"}}
	messages.On("SearchInChats", []uint64{5, 6}, "deadline", 50).Return(found, nil)

	out, err := svc.SearchMessages(1, "deadline")

	require.NoError(t, err)
	assert.Equal(t, found, out)
}

func TestSearchMessagesNoChatsReturnsEmpty(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	chats.On("ListChatIDsByUser", uint64(1)).Return([]uint64{}, nil)

	out, err := svc.SearchMessages(1, "anything")

	require.NoError(t, err)
	assert.Empty(t, out)
	messages.AssertNotCalled(t, "SearchInChats", mock.Anything, mock.Anything, mock.Anything)
}

// --- Summary input ---

func TestSummaryInputRequiresMembership(t *testing.T) {
	svc, _, chats, _, _ := newService()
	chats.On("IsMember", uint64(5), uint64(9)).Return(false, nil)

	_, err := svc.SummaryInput(5, 9)

	assert.ErrorIs(t, err, common.ErrNotChatMember)
}

func TestSummaryInputReturnsUnread(t *testing.T) {
	svc, _, chats, messages, _ := newService()
	chats.On("IsMember", uint64(5), uint64(2)).Return(true, nil)
	unread := []*domain.Message{{ID: 1}, {ID: 2}}
	messages.On("ListUnread", uint64(5), uint64(2), SummaryFallbackLimit).Return(unread, nil)

	out, err := svc.SummaryInput(5, 2)

	require.NoError(t, err)
	assert.Equal(t, unread, out)
}

// --- Moderation logs ---

func TestRecordModerationWritesInlineWithoutQueue(t *testing.T) {
	svc, _, _, _, modLogs := newService()
	modLogs.On("Create", mock.MatchedBy(func(l *domain.ModerationLog) bool {
		return l.MessageID == 9 && l.Flagged && !l.Degraded
	})).Return(nil)

	svc.RecordModeration(&domain.Message{ID: 9}, ModerationResult{
		Verdict: VerdictFlag,
		Scores:  map[string]float64{"harassment": 0.6},
	})

	modLogs.AssertNumberOfCalls(t, "Create", 1)
}

type stubEnqueuer struct {
	logErr   error
	indexErr error
	logs     int
	indexed  int
}

func (s *stubEnqueuer) EnqueueModerationLog(_ context.Context, log *domain.ModerationLog) error {
	s.logs++
	return s.logErr
}

func (s *stubEnqueuer) EnqueueIndexMessage(_ context.Context, msg *domain.Message) error {
	s.indexed++
	return s.indexErr
}

func TestRecordModerationPrefersQueue(t *testing.T) {
	svc, _, _, _, modLogs := newService()
	q := &stubEnqueuer{}
	svc.SetEnqueuer(q)

	svc.RecordModeration(&domain.Message{ID: 9}, ModerationResult{Verdict: VerdictAllow})

	assert.Equal(t, 1, q.logs)
	modLogs.AssertNotCalled(t, "Create", mock.Anything)
}

func TestRecordModerationFallsBackInlineOnQueueError(t *testing.T) {
	svc, _, _, _, modLogs := newService()
	q := &stubEnqueuer{logErr: errors.New("queue down")}
	svc.SetEnqueuer(q)
	modLogs.On("Create", mock.AnythingOfType("*domain.ModerationLog")).Return(nil)

	svc.RecordModeration(&domain.Message{ID: 9}, ModerationResult{Verdict: VerdictAllow})

	assert.Equal(t, 1, q.logs)
	modLogs.AssertNumberOfCalls(t, "Create", 1)
}
