package lobby

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lobbyhub/backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxMessageLength bounds a single chat message, in runes.
const MaxMessageLength = 500

// Broadcaster receives one call per event shape, strictly after the triggering
// mutation has committed. Implementations must not block the caller for long
// and must never fail the mutation; delivery is best-effort.
type Broadcaster interface {
	PlayerJoined(snap Snapshot, user UserView)
	PlayerLeft(snap Snapshot, user UserView)
	ReadyChanged(snap Snapshot, user UserView, ready bool)
	LobbyStarted(snap Snapshot)
	LobbyClosed(code string, host UserView)
	MessageSent(code string, msg MessageView)
}

// Presence reports which members are currently connected to a lobby's
// real-time channel. Advisory only; never consulted for membership decisions.
type Presence interface {
	Online(ctx context.Context, code string) ([]uint, error)
}

// MessageView is the wire form of one chat message.
type MessageView struct {
	ID        uint      `json:"id"`
	LobbyCode string    `json:"lobby_code"`
	User      UserView  `json:"user"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is the single entry point for lobby mutations. It enforces the
// lifecycle rules (open -> started -> closed), serializes mutations per lobby
// code, and dispatches broadcasts only after the database transaction commits.
type Service struct {
	db       *gorm.DB
	notify   Broadcaster
	presence Presence

	// locks keys lobby code to a *sync.Mutex so that at most one mutating
	// operation per lobby is in flight. Different lobbies never contend.
	locks sync.Map

	// newCode is swapped out by tests to force collisions.
	newCode func() string
}

// NewService wires the lobby core. notify and presence may be nil in tests.
func NewService(db *gorm.DB, notify Broadcaster, presence Presence) *Service {
	return &Service{db: db, notify: notify, presence: presence, newCode: randomCode}
}

// SetBroadcaster attaches the broadcaster after construction. The hub needs
// the service for channel authorization, so wiring happens in two phases.
func (s *Service) SetBroadcaster(b Broadcaster) {
	s.notify = b
}

func (s *Service) lockCode(code string) func() {
	v, _ := s.locks.LoadOrStore(code, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Create makes a new lobby for the game identified by slug, with the caller as
// host. The lobby code is generated with a bounded collision-retry loop; the
// unique constraint on lobbies.code is the backstop under concurrent creates.
func (s *Service) Create(ctx context.Context, userID uint, gameSlug, password string) (Snapshot, error) {
	var game models.Game
	if err := s.db.WithContext(ctx).Where("slug = ?", gameSlug).First(&game).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Snapshot{}, ErrGameNotFound
		}
		return Snapshot{}, err
	}

	var passwordHash *string
	if password != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return Snapshot{}, err
		}
		h := string(hashed)
		passwordHash = &h
	}

	var lobbyID uint
	for attempt := 0; ; attempt++ {
		if attempt == maxCodeAttempts {
			return Snapshot{}, ErrCodeSpaceExhausted
		}
		code := s.newCode()

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inLobby, err := userHasMembership(tx, userID)
			if err != nil {
				return err
			}
			if inLobby {
				return ErrAlreadyInLobby
			}

			var count int64
			if err := tx.Model(&models.Lobby{}).Where("code = ?", code).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return errCodeCollision
			}

			lob := models.Lobby{
				GameID:       game.ID,
				HostID:       userID,
				Code:         code,
				PasswordHash: passwordHash,
			}
			if err := tx.Create(&lob).Error; err != nil {
				return err
			}
			if err := tx.Create(&models.LobbyPlayer{LobbyID: lob.ID, UserID: userID}).Error; err != nil {
				// The user_id unique index catches a concurrent join or
				// create racing this one.
				if isUniqueViolation(err) {
					return ErrAlreadyInLobby
				}
				return err
			}
			lobbyID = lob.ID
			return nil
		})
		if errors.Is(err, errCodeCollision) || isUniqueViolation(err) {
			continue
		}
		if err != nil {
			return Snapshot{}, err
		}
		break
	}

	return s.loadSnapshot(ctx, s.db, lobbyID)
}

// Join adds the caller to the lobby identified by code.
func (s *Service) Join(ctx context.Context, userID uint, code, password string) (Snapshot, error) {
	unlock := s.lockCode(code)
	defer unlock()

	var (
		lobbyID uint
		user    models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lob, err := lobbyByCodeLocked(tx, code)
		if err != nil {
			return err
		}

		inLobby, err := userHasMembership(tx, userID)
		if err != nil {
			return err
		}
		if inLobby {
			return ErrAlreadyInLobby
		}

		if lob.PasswordHash != nil {
			if bcrypt.CompareHashAndPassword([]byte(*lob.PasswordHash), []byte(password)) != nil {
				return ErrWrongPassword
			}
		}

		var game models.Game
		if err := tx.First(&game, lob.GameID).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.LobbyPlayer{}).Where("lobby_id = ?", lob.ID).Count(&count).Error; err != nil {
			return err
		}
		if count >= int64(game.MaxPlayers) {
			return ErrLobbyFull
		}

		if lob.Started {
			return ErrLobbyStarted
		}

		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}
		if err := tx.Create(&models.LobbyPlayer{LobbyID: lob.ID, UserID: userID}).Error; err != nil {
			// Concurrent join into a different lobby trips the user_id
			// unique index.
			if isUniqueViolation(err) {
				return ErrAlreadyInLobby
			}
			return err
		}
		lobbyID = lob.ID
		return nil
	})
	if err != nil {
		return Snapshot{}, err
	}

	snap, err := s.loadSnapshot(ctx, s.db, lobbyID)
	if err != nil {
		return Snapshot{}, err
	}
	s.broadcast(func(b Broadcaster) { b.PlayerJoined(snap, newUserView(user)) })
	return snap, nil
}

// Leave removes the caller from their lobby. A leaving host tears the whole
// lobby down: memberships and messages cascade, and every member is evicted.
func (s *Service) Leave(ctx context.Context, userID uint, code string) error {
	unlock := s.lockCode(code)
	defer unlock()

	var (
		lobbyID  uint
		hostLeft bool
		user     models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lob, err := lobbyByCodeLocked(tx, code)
		if err != nil {
			return err
		}
		if err := memberRow(tx, lob.ID, userID); err != nil {
			return err
		}
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		if lob.HostID == userID {
			hostLeft = true
			return deleteLobbyCascade(tx, lob.ID)
		}

		lobbyID = lob.ID
		return tx.Where("lobby_id = ? AND user_id = ?", lob.ID, userID).
			Delete(&models.LobbyPlayer{}).Error
	})
	if err != nil {
		return err
	}

	if hostLeft {
		// The lock entry stays in the map for the life of the process. Removing
		// it here would let a caller already blocked on the mutex finish while
		// a later caller allocates a fresh one, breaking serialization if the
		// code is ever reissued. The map grows with distinct codes seen, which
		// is bounded by lobby churn.
		s.broadcast(func(b Broadcaster) { b.LobbyClosed(code, newUserView(user)) })
		return nil
	}

	snap, err := s.loadSnapshot(ctx, s.db, lobbyID)
	if err != nil {
		return err
	}
	s.broadcast(func(b Broadcaster) { b.PlayerLeft(snap, newUserView(user)) })
	return nil
}

// ToggleReady flips the caller's ready flag and returns the new value.
func (s *Service) ToggleReady(ctx context.Context, userID uint, code string) (bool, error) {
	unlock := s.lockCode(code)
	defer unlock()

	var (
		lobbyID uint
		ready   bool
		user    models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lob, err := lobbyByCodeLocked(tx, code)
		if err != nil {
			return err
		}
		var player models.LobbyPlayer
		if err := tx.Where("lobby_id = ? AND user_id = ?", lob.ID, userID).First(&player).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAMember
			}
			return err
		}
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}

		ready = !player.Ready
		lobbyID = lob.ID
		return tx.Model(&models.LobbyPlayer{}).
			Where("lobby_id = ? AND user_id = ?", lob.ID, userID).
			Update("ready", ready).Error
	})
	if err != nil {
		return false, err
	}

	snap, err := s.loadSnapshot(ctx, s.db, lobbyID)
	if err != nil {
		return ready, err
	}
	s.broadcast(func(b Broadcaster) { b.ReadyChanged(snap, newUserView(user), ready) })
	return ready, nil
}

// Kick removes target from the lobby. Only the host may kick, and not themselves.
func (s *Service) Kick(ctx context.Context, hostID uint, code string, targetID uint) error {
	unlock := s.lockCode(code)
	defer unlock()

	var (
		lobbyID uint
		target  models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lob, err := lobbyByCodeLocked(tx, code)
		if err != nil {
			return err
		}
		if lob.HostID != hostID {
			return ErrNotHost
		}
		if targetID == hostID {
			return ErrCannotKickHost
		}
		if err := memberRow(tx, lob.ID, targetID); err != nil {
			return err
		}
		if err := tx.First(&target, targetID).Error; err != nil {
			return err
		}
		lobbyID = lob.ID
		return tx.Where("lobby_id = ? AND user_id = ?", lob.ID, targetID).
			Delete(&models.LobbyPlayer{}).Error
	})
	if err != nil {
		return err
	}

	snap, err := s.loadSnapshot(ctx, s.db, lobbyID)
	if err != nil {
		return err
	}
	s.broadcast(func(b Broadcaster) { b.PlayerLeft(snap, newUserView(target)) })
	return nil
}

// Start flips the lobby to started once the preconditions hold: the caller is
// host, the player count reaches the game minimum, and every member (host
// included) is ready. The transition is one-way; a second Start fails.
func (s *Service) Start(ctx context.Context, hostID uint, code string) error {
	unlock := s.lockCode(code)
	defer unlock()

	var lobbyID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lob, err := lobbyByCodeLocked(tx, code)
		if err != nil {
			return err
		}
		if lob.HostID != hostID {
			return ErrNotHost
		}
		if lob.Started {
			return ErrAlreadyStarted
		}

		var game models.Game
		if err := tx.First(&game, lob.GameID).Error; err != nil {
			return err
		}
		var players []models.LobbyPlayer
		if err := tx.Where("lobby_id = ?", lob.ID).Find(&players).Error; err != nil {
			return err
		}
		if len(players) < game.MinPlayers {
			return ErrNotEnoughPlayers
		}
		for _, p := range players {
			if !p.Ready {
				return ErrPlayersNotReady
			}
		}

		lobbyID = lob.ID
		return tx.Model(&models.Lobby{}).Where("id = ?", lob.ID).Update("started", true).Error
	})
	if err != nil {
		return err
	}

	snap, err := s.loadSnapshot(ctx, s.db, lobbyID)
	if err != nil {
		return err
	}
	s.broadcast(func(b Broadcaster) { b.LobbyStarted(snap) })
	return nil
}

// SendMessage appends a chat message to the lobby and fans it out.
func (s *Service) SendMessage(ctx context.Context, userID uint, code, text string) (MessageView, error) {
	text = strings.TrimSpace(text)

	unlock := s.lockCode(code)
	defer unlock()

	var (
		msg  models.LobbyMessage
		user models.User
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lob, err := lobbyByCodeLocked(tx, code)
		if err != nil {
			return err
		}
		// Membership is checked before the message content so an outsider
		// always gets the same answer regardless of what they sent.
		if err := memberRow(tx, lob.ID, userID); err != nil {
			return err
		}
		if text == "" {
			return ErrEmptyMessage
		}
		if utf8.RuneCountInString(text) > MaxMessageLength {
			return ErrMessageTooLong
		}
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}
		msg = models.LobbyMessage{LobbyID: lob.ID, UserID: userID, Message: text}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return MessageView{}, err
	}

	view := MessageView{
		ID:        msg.ID,
		LobbyCode: code,
		User:      newUserView(user),
		Message:   msg.Message,
		CreatedAt: msg.CreatedAt,
	}
	s.broadcast(func(b Broadcaster) { b.MessageSent(code, view) })
	return view, nil
}

// Messages returns the lobby's chat history, oldest first. Members only.
func (s *Service) Messages(ctx context.Context, userID uint, code string) ([]MessageView, error) {
	db := s.db.WithContext(ctx)
	lob, err := lobbyByCode(db, code)
	if err != nil {
		return nil, err
	}
	if err := memberRow(db, lob.ID, userID); err != nil {
		return nil, err
	}

	var rows []models.LobbyMessage
	if err := db.Where("lobby_id = ?", lob.ID).Preload("User").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	views := make([]MessageView, 0, len(rows))
	for _, m := range rows {
		views = append(views, MessageView{
			ID:        m.ID,
			LobbyCode: code,
			User:      newUserView(m.User),
			Message:   m.Message,
			CreatedAt: m.CreatedAt,
		})
	}
	return views, nil
}

// Get returns the snapshot for one lobby.
func (s *Service) Get(ctx context.Context, code string) (Snapshot, error) {
	lob, err := lobbyByCode(s.db.WithContext(ctx), code)
	if err != nil {
		return Snapshot{}, err
	}
	return s.loadSnapshot(ctx, s.db, lob.ID)
}

// List returns snapshots of lobbies still accepting joins, newest first.
func (s *Service) List(ctx context.Context, page, limit int) ([]Snapshot, int64, error) {
	db := s.db.WithContext(ctx)

	var total int64
	if err := db.Model(&models.Lobby{}).Where("started = ?", false).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var lobbies []models.Lobby
	err := db.Where("started = ?", false).
		Preload("Game").
		Preload("Host").
		Preload("Players", func(db *gorm.DB) *gorm.DB { return db.Order("lobby_players.created_at ASC") }).
		Preload("Players.User").
		Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&lobbies).Error
	if err != nil {
		return nil, 0, err
	}

	snaps := make([]Snapshot, 0, len(lobbies))
	for _, lob := range lobbies {
		snaps = append(snaps, s.assembleSnapshot(ctx, lob))
	}
	return snaps, total, nil
}

// IsMember reports whether userID currently holds a membership row for the
// lobby. The broadcast hub re-checks this on every channel subscribe.
func (s *Service) IsMember(ctx context.Context, userID uint, code string) bool {
	lob, err := lobbyByCode(s.db.WithContext(ctx), code)
	if err != nil {
		return false
	}
	return memberRow(s.db.WithContext(ctx), lob.ID, userID) == nil
}

// broadcast runs fn against the configured Broadcaster, swallowing panics so a
// notification failure can never undo or fail a committed mutation.
func (s *Service) broadcast(fn func(Broadcaster)) {
	if s.notify == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("lobby: broadcast dispatch failed: %v", r)
		}
	}()
	fn(s.notify)
}

// errCodeCollision is internal to the create retry loop.
var errCodeCollision = errors.New("lobby code collision")

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint")
}

func lobbyByCode(db *gorm.DB, code string) (models.Lobby, error) {
	var lob models.Lobby
	if err := db.Where("code = ?", code).First(&lob).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return lob, ErrLobbyNotFound
		}
		return lob, err
	}
	return lob, nil
}

// lobbyByCodeLocked reads the lobby row for a mutating transaction, taking a
// row-level lock where the dialect has one. Every mutation acquires this lock
// first, so two processes touching the same lobby serialize on the row even
// though the in-process mutex only covers one of them.
func lobbyByCodeLocked(tx *gorm.DB, code string) (models.Lobby, error) {
	return lobbyByCode(lockForUpdate(tx, tx.Dialector.Name()), code)
}

func lockForUpdate(tx *gorm.DB, dialect string) *gorm.DB {
	if rowLocking(dialect) {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// rowLocking reports whether the dialect accepts SELECT ... FOR UPDATE.
// sqlite does not; there the per-code mutex and sqlite's single writer carry
// the serialization on their own.
func rowLocking(dialect string) bool {
	return dialect != "sqlite"
}

func userHasMembership(db *gorm.DB, userID uint) (bool, error) {
	var count int64
	err := db.Model(&models.LobbyPlayer{}).Where("user_id = ?", userID).Count(&count).Error
	return count > 0, err
}

func memberRow(db *gorm.DB, lobbyID, userID uint) error {
	var count int64
	err := db.Model(&models.LobbyPlayer{}).
		Where("lobby_id = ? AND user_id = ?", lobbyID, userID).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotAMember
	}
	return nil
}

func deleteLobbyCascade(tx *gorm.DB, lobbyID uint) error {
	if err := tx.Where("lobby_id = ?", lobbyID).Delete(&models.LobbyMessage{}).Error; err != nil {
		return err
	}
	if err := tx.Where("lobby_id = ?", lobbyID).Delete(&models.LobbyPlayer{}).Error; err != nil {
		return err
	}
	// Hard delete so the code goes back into the pool immediately.
	return tx.Unscoped().Delete(&models.Lobby{}, lobbyID).Error
}
