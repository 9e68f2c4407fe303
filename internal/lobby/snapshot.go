package lobby

import (
	"context"
	"time"

	"lobbyhub/backend/internal/models"

	"gorm.io/gorm"
)

// Snapshot is a fully-loaded read view of a lobby: its game, host and players.
// Every broadcast and every successful mutation response carries one, so all
// connected clients converge on the same picture of the lobby.
type Snapshot struct {
	Code        string       `json:"lobby_code"`
	Started     bool         `json:"started"`
	HasPassword bool         `json:"has_password"`
	Game        GameView     `json:"game"`
	Host        UserView     `json:"host"`
	Players     []PlayerView `json:"players"`
	CreatedAt   time.Time    `json:"created_at"`
}

// GameView is the catalog entry embedded in a snapshot.
type GameView struct {
	ID         uint   `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	MinPlayers int    `json:"min_players"`
	MaxPlayers int    `json:"max_players"`
}

// UserView is the public identity of a user inside a snapshot.
type UserView struct {
	ID       uint   `json:"id"`
	Nickname string `json:"nickname"`
}

// PlayerView is one membership row plus its advisory presence state.
// Online reflects the real-time channel only; a persisted member can be
// offline and still hold their seat.
type PlayerView struct {
	UserView
	Ready    bool      `json:"ready"`
	Online   bool      `json:"online"`
	JoinedAt time.Time `json:"joined_at"`
}

func newGameView(g models.Game) GameView {
	return GameView{ID: g.ID, Slug: g.Slug, Name: g.Name, MinPlayers: g.MinPlayers, MaxPlayers: g.MaxPlayers}
}

func newUserView(u models.User) UserView {
	return UserView{ID: u.ID, Nickname: u.Nickname}
}

// loadSnapshot reloads a lobby with game, host and players eager-loaded and
// assembles the value object. It is called after every mutation so broadcasts
// never expose a half-updated view.
func (s *Service) loadSnapshot(ctx context.Context, db *gorm.DB, lobbyID uint) (Snapshot, error) {
	var lob models.Lobby
	err := db.WithContext(ctx).
		Preload("Game").
		Preload("Host").
		Preload("Players", func(db *gorm.DB) *gorm.DB { return db.Order("lobby_players.created_at ASC") }).
		Preload("Players.User").
		First(&lob, lobbyID).Error
	if err != nil {
		return Snapshot{}, err
	}
	return s.assembleSnapshot(ctx, lob), nil
}

func (s *Service) assembleSnapshot(ctx context.Context, lob models.Lobby) Snapshot {
	online := map[uint]bool{}
	if s.presence != nil {
		ids, err := s.presence.Online(ctx, lob.Code)
		if err == nil {
			for _, id := range ids {
				online[id] = true
			}
		}
	}

	players := make([]PlayerView, 0, len(lob.Players))
	for _, p := range lob.Players {
		players = append(players, PlayerView{
			UserView: newUserView(p.User),
			Ready:    p.Ready,
			Online:   online[p.UserID],
			JoinedAt: p.CreatedAt,
		})
	}

	return Snapshot{
		Code:        lob.Code,
		Started:     lob.Started,
		HasPassword: lob.PasswordHash != nil,
		Game:        newGameView(lob.Game),
		Host:        newUserView(lob.Host),
		Players:     players,
		CreatedAt:   lob.CreatedAt,
	}
}
