package handler

import (
	"net/http"

	"lobbyhub/backend/internal/database"
	"lobbyhub/backend/internal/lobby"
	"lobbyhub/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

// CreateLobbyInput identifies the game either by slug or by numeric id;
// exactly one of the two must be set. The slug form is what the frontend
// sends, the id form is kept for API clients working from /games listings.
type CreateLobbyInput struct {
	GameSlug string `json:"game_slug" example:"catan"`
	GameID   uint   `json:"game_id" example:"1"`
	Password string `json:"password"`
}

type JoinLobbyInput struct {
	LobbyCode string `json:"lobby_code" binding:"required,len=8" example:"A1B2C3D4"`
	Password  string `json:"password"`
}

type KickInput struct {
	UserID uint `json:"user_id" binding:"required"`
}

type InviteInput struct {
	UserID uint `json:"user_id" binding:"required"`
}

type MessageInput struct {
	Message string `json:"message" binding:"required"`
}

// endregion

// multiplayerGame resolves the game named by the input and rejects
// single-player titles: a game with max_players == 1 bypasses the lobby
// subsystem entirely. This gate lives here, in front of the state machine,
// not inside it.
func multiplayerGame(input CreateLobbyInput) (models.Game, *lobby.Error) {
	var game models.Game
	query := database.DB
	switch {
	case input.GameSlug != "":
		query = query.Where("slug = ?", input.GameSlug)
	case input.GameID != 0:
		query = query.Where("id = ?", input.GameID)
	default:
		return game, lobby.ErrGameNotFound
	}
	if err := query.First(&game).Error; err != nil {
		return game, lobby.ErrGameNotFound
	}
	if !game.Multiplayer() {
		return game, lobby.ErrGameNotFound
	}
	return game, nil
}

// CreateLobby godoc
// @Summary      Create a new lobby
// @Description  Creates a lobby for a multiplayer game, making the creator the host.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body CreateLobbyInput true "Lobby Info"
// @Success      201  {object}  lobby.Snapshot
// @Failure      400  {object}  ErrorResponse
// @Failure      404  {object}  ErrorResponse "Game not found"
// @Failure      409  {object}  ErrorResponse "User is already in a lobby"
// @Router       /lobbies [post]
func CreateLobby(c *gin.Context) {
	var input CreateLobbyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if input.GameSlug == "" && input.GameID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "game_slug or game_id is required"})
		return
	}

	game, lerr := multiplayerGame(input)
	if lerr != nil {
		respondLobbyError(c, lerr)
		return
	}

	snap, err := Lobbies.Create(c.Request.Context(), currentUserID(c), game.Slug, input.Password)
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// ListLobbies godoc
// @Summary      List open lobbies
// @Description  Gets a paginated list of lobbies still accepting players.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(10)
// @Success      200 {object} PaginatedResponse[lobby.Snapshot]
// @Router       /lobbies [get]
func ListLobbies(c *gin.Context) {
	page, limit := pageParams(c, 10)

	snaps, total, err := Lobbies.List(c.Request.Context(), page, limit)
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(snaps, total, page, limit))
}

// GetLobby godoc
// @Summary      Get a lobby by code
// @Description  Gets the full snapshot for a single lobby.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Lobby code"
// @Success      200 {object} lobby.Snapshot
// @Failure      404 {object} ErrorResponse "Lobby not found"
// @Router       /lobbies/{code} [get]
func GetLobby(c *gin.Context) {
	snap, err := Lobbies.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// JoinLobby godoc
// @Summary      Join a lobby by code
// @Description  Joins an open lobby if the password matches and a seat is free.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        input body JoinLobbyInput true "Join Info"
// @Success      200 {object} lobby.Snapshot
// @Failure      400 {object} ErrorResponse "Wrong password"
// @Failure      404 {object} ErrorResponse "Lobby not found"
// @Failure      409 {object} ErrorResponse "Lobby full, started, or user already in a lobby"
// @Router       /lobbies/join [post]
func JoinLobby(c *gin.Context) {
	var input JoinLobbyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := Lobbies.Join(c.Request.Context(), currentUserID(c), input.LobbyCode, input.Password)
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// LeaveLobby godoc
// @Summary      Leave a lobby
// @Description  Leaves the lobby. If the host leaves, the lobby is closed for everyone.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Lobby code"
// @Success      204 "No Content"
// @Failure      403 {object} ErrorResponse "Not a member"
// @Failure      404 {object} ErrorResponse "Lobby not found"
// @Router       /lobbies/{code}/leave [post]
func LeaveLobby(c *gin.Context) {
	if err := Lobbies.Leave(c.Request.Context(), currentUserID(c), c.Param("code")); err != nil {
		respondLobbyError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ToggleReady godoc
// @Summary      Toggle the ready flag
// @Description  Flips the caller's ready state and returns the new value.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Lobby code"
// @Success      200 {object} map[string]bool "{"ready": true}"
// @Failure      403 {object} ErrorResponse "Not a member"
// @Router       /lobbies/{code}/ready [post]
func ToggleReady(c *gin.Context) {
	ready, err := Lobbies.ToggleReady(c.Request.Context(), currentUserID(c), c.Param("code"))
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": ready})
}

// StartLobby godoc
// @Summary      Start the game (host only)
// @Description  Starts the lobby once enough players joined and everyone is ready.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Lobby code"
// @Success      204 "No Content"
// @Failure      403 {object} ErrorResponse "Only the host can start"
// @Failure      409 {object} ErrorResponse "Already started, too few players, or players not ready"
// @Router       /lobbies/{code}/start [post]
func StartLobby(c *gin.Context) {
	if err := Lobbies.Start(c.Request.Context(), currentUserID(c), c.Param("code")); err != nil {
		respondLobbyError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// KickMember godoc
// @Summary      Kick a member (host only)
// @Description  Removes a member from the lobby. Only the host can perform this action.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string    true "Lobby code"
// @Param        input body KickInput true "Member to kick"
// @Success      204 "No Content"
// @Failure      403 {object} ErrorResponse "Only the host can kick members"
// @Failure      404 {object} ErrorResponse "Lobby or member not found"
// @Router       /lobbies/{code}/kick [post]
func KickMember(c *gin.Context) {
	var input KickInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Lobbies.Kick(c.Request.Context(), currentUserID(c), c.Param("code"), input.UserID); err != nil {
		respondLobbyError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SendLobbyMessage godoc
// @Summary      Send a chat message
// @Description  Appends a message to the lobby chat and broadcasts it.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string       true "Lobby code"
// @Param        input body MessageInput true "Message"
// @Success      201 {object} lobby.MessageView
// @Failure      400 {object} ErrorResponse "Empty or too long"
// @Failure      403 {object} ErrorResponse "Not a member"
// @Router       /lobbies/{code}/messages [post]
func SendLobbyMessage(c *gin.Context) {
	var input MessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := Lobbies.SendMessage(c.Request.Context(), currentUserID(c), c.Param("code"), input.Message)
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetLobbyMessages godoc
// @Summary      Get the chat history
// @Description  Returns the lobby's messages, oldest first. Members only.
// @Tags         lobbies
// @Produce      json
// @Security     BearerAuth
// @Param        code path string true "Lobby code"
// @Success      200 {array} lobby.MessageView
// @Failure      403 {object} ErrorResponse "Not a member"
// @Router       /lobbies/{code}/messages [get]
func GetLobbyMessages(c *gin.Context) {
	msgs, err := Lobbies.Messages(c.Request.Context(), currentUserID(c), c.Param("code"))
	if err != nil {
		respondLobbyError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// InviteToLobby godoc
// @Summary      Invite a user to the lobby
// @Description  Sends a lobby invitation to the user's private channel. Members only.
// @Tags         lobbies
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        code  path string      true "Lobby code"
// @Param        input body InviteInput true "User to invite"
// @Success      204 "No Content"
// @Failure      403 {object} ErrorResponse "Not a member"
// @Failure      404 {object} ErrorResponse "Lobby or user not found"
// @Router       /lobbies/{code}/invite [post]
func InviteToLobby(c *gin.Context) {
	var input InviteInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	code := c.Param("code")
	callerID := currentUserID(c)
	if !Lobbies.IsMember(c.Request.Context(), callerID, code) {
		respondLobbyError(c, lobby.ErrNotAMember)
		return
	}

	var invitee models.User
	if err := database.DB.First(&invitee, input.UserID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	var caller models.User
	if err := database.DB.First(&caller, callerID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	snap, err := Lobbies.Get(c.Request.Context(), code)
	if err != nil {
		respondLobbyError(c, err)
		return
	}

	Notifier.NotifyLobbyInvitation(invitee.ID, lobby.UserView{ID: caller.ID, Nickname: caller.Nickname}, snap)
	c.Status(http.StatusNoContent)
}
