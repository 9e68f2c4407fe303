package lobby

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"lobbyhub/backend/internal/database"
	"lobbyhub/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingBroadcaster captures dispatched events so tests can assert on the
// commit-before-broadcast contract without a real hub.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingBroadcaster) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, name)
}

func (r *recordingBroadcaster) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingBroadcaster) PlayerJoined(Snapshot, UserView)       { r.record("player_joined") }
func (r *recordingBroadcaster) PlayerLeft(Snapshot, UserView)         { r.record("player_left") }
func (r *recordingBroadcaster) ReadyChanged(Snapshot, UserView, bool) { r.record("ready_changed") }
func (r *recordingBroadcaster) LobbyStarted(Snapshot)                 { r.record("lobby_started") }
func (r *recordingBroadcaster) LobbyClosed(string, UserView)          { r.record("lobby_closed") }
func (r *recordingBroadcaster) MessageSent(string, MessageView)       { r.record("message_sent") }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps every query on the same in-memory database
	// and serializes sqlite access under concurrent tests.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *recordingBroadcaster) {
	t.Helper()
	db := newTestDB(t)
	rec := &recordingBroadcaster{}
	svc := NewService(db, rec, nil)
	return svc, db, rec
}

func seedUser(t *testing.T, db *gorm.DB, nickname string) models.User {
	t.Helper()
	user := models.User{
		Nickname:     nickname,
		Email:        nickname + "@example.com",
		PasswordHash: "x",
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedGame(t *testing.T, db *gorm.DB, slug string, min, max int) models.Game {
	t.Helper()
	game := models.Game{Slug: slug, Name: slug, MinPlayers: min, MaxPlayers: max}
	require.NoError(t, db.Create(&game).Error)
	return game
}

func membershipCount(t *testing.T, db *gorm.DB, userID uint) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&models.LobbyPlayer{}).Where("user_id = ?", userID).Count(&count).Error)
	return count
}

func TestCreate_HostBecomesMember(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)

	assert.Len(t, snap.Code, 8)
	assert.False(t, snap.Started)
	assert.False(t, snap.HasPassword)
	assert.Equal(t, host.ID, snap.Host.ID)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, host.ID, snap.Players[0].ID)
	assert.False(t, snap.Players[0].Ready)
}

func TestCreate_AlreadyInLobby(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	seedGame(t, db, "catan", 3, 4)

	_, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), host.ID, "catan", "")
	assert.ErrorIs(t, err, ErrAlreadyInLobby)

	var lobbies int64
	require.NoError(t, db.Model(&models.Lobby{}).Count(&lobbies).Error)
	assert.EqualValues(t, 1, lobbies, "failed create must not leave a lobby row behind")
}

func TestCreate_GameNotFound(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")

	_, err := svc.Create(context.Background(), host.ID, "no-such-game", "")
	assert.ErrorIs(t, err, ErrGameNotFound)
}

func TestCreate_CodeCollisionRetries(t *testing.T) {
	svc, db, _ := newTestService(t)
	a := seedUser(t, db, "a")
	b := seedUser(t, db, "b")
	seedGame(t, db, "catan", 3, 4)

	codes := []string{"SAMECODE", "SAMECODE", "SAMECODE", "OTHRCODE"}
	svc.newCode = func() string {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code
	}

	first, err := svc.Create(context.Background(), a.ID, "catan", "")
	require.NoError(t, err)
	assert.Equal(t, "SAMECODE", first.Code)

	second, err := svc.Create(context.Background(), b.ID, "catan", "")
	require.NoError(t, err)
	assert.Equal(t, "OTHRCODE", second.Code, "generator must retry past the collision")
}

func TestCreate_CodeSpaceExhausted(t *testing.T) {
	svc, db, _ := newTestService(t)
	a := seedUser(t, db, "a")
	b := seedUser(t, db, "b")
	seedGame(t, db, "catan", 3, 4)

	svc.newCode = func() string { return "SAMECODE" }

	_, err := svc.Create(context.Background(), a.ID, "catan", "")
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), b.ID, "catan", "")
	assert.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestJoin(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "chess", 2, 2)

	snap, err := svc.Create(context.Background(), host.ID, "chess", "")
	require.NoError(t, err)

	joined, err := svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)
	assert.Len(t, joined.Players, 2)
	assert.Equal(t, []string{"player_joined"}, rec.Events())
}

func TestJoin_LobbyNotFound(t *testing.T) {
	svc, db, _ := newTestService(t)
	guest := seedUser(t, db, "guest")

	_, err := svc.Join(context.Background(), guest.ID, "NOPECODE", "")
	assert.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestJoin_WrongPassword(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "chess", 2, 2)

	snap, err := svc.Create(context.Background(), host.ID, "chess", "hunter2")
	require.NoError(t, err)
	assert.True(t, snap.HasPassword)

	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "hunter2")
	assert.NoError(t, err)
}

func TestJoin_LobbyFull(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	third := seedUser(t, db, "third")
	seedGame(t, db, "chess", 2, 2)

	snap, err := svc.Create(context.Background(), host.ID, "chess", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)

	_, err = svc.Join(context.Background(), third.ID, snap.Code, "")
	assert.ErrorIs(t, err, ErrLobbyFull)
}

func TestJoin_AlreadyStarted(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	third := seedUser(t, db, "third")
	seedGame(t, db, "catan", 2, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)

	for _, id := range []uint{host.ID, guest.ID} {
		_, err = svc.ToggleReady(context.Background(), id, snap.Code)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Start(context.Background(), host.ID, snap.Code))

	_, err = svc.Join(context.Background(), third.ID, snap.Code, "")
	assert.ErrorIs(t, err, ErrLobbyStarted)
}

func TestJoin_AlreadyInLobby(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	other := seedUser(t, db, "other")
	seedGame(t, db, "catan", 3, 4)

	first, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), other.ID, "catan", "")
	require.NoError(t, err)

	_, err = svc.Join(context.Background(), host.ID, second.Code, "")
	assert.ErrorIs(t, err, ErrAlreadyInLobby)
	_, err = svc.Join(context.Background(), host.ID, first.Code, "")
	assert.ErrorIs(t, err, ErrAlreadyInLobby, "rejoining your own lobby is still a second membership")
}

func TestLeave_MemberLeaves(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)

	require.NoError(t, svc.Leave(context.Background(), guest.ID, snap.Code))

	after, err := svc.Get(context.Background(), snap.Code)
	require.NoError(t, err)
	assert.Len(t, after.Players, 1)
	assert.EqualValues(t, 0, membershipCount(t, db, guest.ID))
	assert.Contains(t, rec.Events(), "player_left")
}

func TestLeave_HostClosesLobby(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)
	_, err = svc.SendMessage(context.Background(), guest.ID, snap.Code, "hello")
	require.NoError(t, err)

	require.NoError(t, svc.Leave(context.Background(), host.ID, snap.Code))

	_, err = svc.Get(context.Background(), snap.Code)
	assert.ErrorIs(t, err, ErrLobbyNotFound)

	var players, messages int64
	require.NoError(t, db.Model(&models.LobbyPlayer{}).Count(&players).Error)
	require.NoError(t, db.Model(&models.LobbyMessage{}).Count(&messages).Error)
	assert.EqualValues(t, 0, players, "memberships must cascade with the lobby")
	assert.EqualValues(t, 0, messages, "messages must cascade with the lobby")
	assert.Contains(t, rec.Events(), "lobby_closed")
}

func TestLeave_NotAMember(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	outsider := seedUser(t, db, "outsider")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)

	err = svc.Leave(context.Background(), outsider.ID, snap.Code)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestToggleReady_RoundTrip(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)

	ready, err := svc.ToggleReady(context.Background(), host.ID, snap.Code)
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = svc.ToggleReady(context.Background(), host.ID, snap.Code)
	require.NoError(t, err)
	assert.False(t, ready, "two toggles must return ready to its original value")
	assert.Equal(t, []string{"ready_changed", "ready_changed"}, rec.Events())
}

func TestToggleReady_NotAMember(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	outsider := seedUser(t, db, "outsider")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)

	_, err = svc.ToggleReady(context.Background(), outsider.ID, snap.Code)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestKick(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)

	err = svc.Kick(context.Background(), guest.ID, snap.Code, host.ID)
	assert.ErrorIs(t, err, ErrNotHost)

	err = svc.Kick(context.Background(), host.ID, snap.Code, host.ID)
	assert.ErrorIs(t, err, ErrCannotKickHost)

	require.NoError(t, svc.Kick(context.Background(), host.ID, snap.Code, guest.ID))
	assert.EqualValues(t, 0, membershipCount(t, db, guest.ID))
	assert.Contains(t, rec.Events(), "player_left")

	err = svc.Kick(context.Background(), host.ID, snap.Code, guest.ID)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestStart_Preconditions(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "trio", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "trio", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)

	err = svc.Start(context.Background(), guest.ID, snap.Code)
	assert.ErrorIs(t, err, ErrNotHost)

	// Two ready members against a three-player minimum.
	for _, id := range []uint{host.ID, guest.ID} {
		_, err = svc.ToggleReady(context.Background(), id, snap.Code)
		require.NoError(t, err)
	}
	err = svc.Start(context.Background(), host.ID, snap.Code)
	assert.ErrorIs(t, err, ErrNotEnoughPlayers)

	after, err := svc.Get(context.Background(), snap.Code)
	require.NoError(t, err)
	assert.False(t, after.Started, "failed start must not flip the flag")
}

func TestStart_AnyUnreadyMemberBlocks(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "chess", 2, 2)

	snap, err := svc.Create(context.Background(), host.ID, "chess", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)

	// Only the guest readies up; the host blocks the start too.
	_, err = svc.ToggleReady(context.Background(), guest.ID, snap.Code)
	require.NoError(t, err)

	err = svc.Start(context.Background(), host.ID, snap.Code)
	assert.ErrorIs(t, err, ErrPlayersNotReady)
}

func TestStart_FullFlow(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	guest := seedUser(t, db, "guest")
	seedGame(t, db, "chess", 2, 2)

	snap, err := svc.Create(context.Background(), host.ID, "chess", "")
	require.NoError(t, err)
	_, err = svc.Join(context.Background(), guest.ID, snap.Code, "")
	require.NoError(t, err)

	for _, id := range []uint{host.ID, guest.ID} {
		_, err = svc.ToggleReady(context.Background(), id, snap.Code)
		require.NoError(t, err)
	}

	require.NoError(t, svc.Start(context.Background(), host.ID, snap.Code))

	after, err := svc.Get(context.Background(), snap.Code)
	require.NoError(t, err)
	assert.True(t, after.Started)

	started := 0
	for _, e := range rec.Events() {
		if e == "lobby_started" {
			started++
		}
	}
	assert.Equal(t, 1, started, "exactly one lobby_started broadcast")

	err = svc.Start(context.Background(), host.ID, snap.Code)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestSendMessage_Validation(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	outsider := seedUser(t, db, "outsider")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)

	_, err = svc.SendMessage(context.Background(), host.ID, snap.Code, "   \t\n ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	long := make([]rune, MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.SendMessage(context.Background(), host.ID, snap.Code, string(long))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = svc.SendMessage(context.Background(), outsider.ID, snap.Code, "hi")
	assert.ErrorIs(t, err, ErrNotAMember)

	// Membership wins over content checks: an outsider learns nothing about
	// which messages would have been accepted.
	_, err = svc.SendMessage(context.Background(), outsider.ID, snap.Code, "   ")
	assert.ErrorIs(t, err, ErrNotAMember)
	_, err = svc.SendMessage(context.Background(), outsider.ID, snap.Code, string(long))
	assert.ErrorIs(t, err, ErrNotAMember)

	var rows int64
	require.NoError(t, db.Model(&models.LobbyMessage{}).Count(&rows).Error)
	assert.EqualValues(t, 0, rows, "rejected messages must not persist")
	assert.Empty(t, rec.Events(), "rejected messages must not broadcast")
}

func TestSendMessage_PersistsAndBroadcasts(t *testing.T) {
	svc, db, rec := newTestService(t)
	host := seedUser(t, db, "host")
	seedGame(t, db, "catan", 3, 4)

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)

	sent, err := svc.SendMessage(context.Background(), host.ID, snap.Code, "  gl hf  ")
	require.NoError(t, err)
	assert.Equal(t, "gl hf", sent.Message, "messages are trimmed before persisting")

	msgs, err := svc.Messages(context.Background(), host.ID, snap.Code)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, sent.ID, msgs[0].ID)
	assert.Equal(t, host.ID, msgs[0].User.ID)
	assert.Equal(t, []string{"message_sent"}, rec.Events())
}

func TestMembershipInvariant_RandomOps(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedGame(t, db, "catan", 2, 4)

	users := make([]models.User, 6)
	for i := range users {
		users[i] = seedUser(t, db, fmt.Sprintf("user%d", i))
	}

	rng := rand.New(rand.NewSource(42))
	var codes []string

	liveCodes := func() []string {
		var lobbies []models.Lobby
		require.NoError(t, db.Find(&lobbies).Error)
		out := make([]string, 0, len(lobbies))
		for _, l := range lobbies {
			out = append(out, l.Code)
		}
		return out
	}

	for i := 0; i < 300; i++ {
		user := users[rng.Intn(len(users))]
		switch rng.Intn(3) {
		case 0:
			_, _ = svc.Create(context.Background(), user.ID, "catan", "")
		case 1:
			codes = liveCodes()
			if len(codes) > 0 {
				_, _ = svc.Join(context.Background(), user.ID, codes[rng.Intn(len(codes))], "")
			}
		case 2:
			codes = liveCodes()
			if len(codes) > 0 {
				_ = svc.Leave(context.Background(), user.ID, codes[rng.Intn(len(codes))])
			}
		}

		for _, u := range users {
			require.LessOrEqual(t, membershipCount(t, db, u.ID), int64(1),
				"user %d holds more than one membership after op %d", u.ID, i)
		}
	}
}

func TestConcurrentCreates_NoDuplicateCodes(t *testing.T) {
	svc, db, _ := newTestService(t)
	seedGame(t, db, "catan", 2, 4)

	const n = 16
	users := make([]models.User, n)
	for i := range users {
		users[i] = seedUser(t, db, fmt.Sprintf("racer%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), userID, "catan", "")
			assert.NoError(t, err)
		}(users[i].ID)
	}
	wg.Wait()

	var lobbies []models.Lobby
	require.NoError(t, db.Find(&lobbies).Error)
	require.Len(t, lobbies, n)

	seen := make(map[string]bool, n)
	for _, l := range lobbies {
		assert.False(t, seen[l.Code], "duplicate lobby code %s", l.Code)
		seen[l.Code] = true
	}
}

func TestLockForUpdateByDialect(t *testing.T) {
	db := newTestDB(t)
	dryrun := func() *gorm.DB {
		return db.Session(&gorm.Session{DryRun: true, NewDB: true})
	}

	sql := lockForUpdate(dryrun(), "postgres").
		Where("code = ?", "AAAABBBB").Find(&models.Lobby{}).Statement.SQL.String()
	assert.Contains(t, sql, "FOR UPDATE", "postgres mutations must lock the lobby row")

	sql = lockForUpdate(dryrun(), "sqlite").
		Where("code = ?", "AAAABBBB").Find(&models.Lobby{}).Statement.SQL.String()
	assert.NotContains(t, sql, "FOR UPDATE", "sqlite has no row locks to take")
}

func TestLeave_ReissuedCodeKeepsSerializing(t *testing.T) {
	svc, db, _ := newTestService(t)
	host := seedUser(t, db, "host")
	seedGame(t, db, "catan", 2, 4)
	svc.newCode = func() string { return "REUSECOD" }

	snap, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)
	require.NoError(t, svc.Leave(context.Background(), host.ID, snap.Code))

	before, ok := svc.locks.Load(snap.Code)
	require.True(t, ok, "lock entry must survive lobby teardown")

	snap2, err := svc.Create(context.Background(), host.ID, "catan", "")
	require.NoError(t, err)
	require.Equal(t, snap.Code, snap2.Code)

	_, err = svc.ToggleReady(context.Background(), host.ID, snap2.Code)
	require.NoError(t, err)

	after, ok := svc.locks.Load(snap.Code)
	require.True(t, ok)
	assert.Same(t, before, after, "a reissued code must land on the original mutex")
}
