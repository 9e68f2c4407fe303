package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"lobbyhub/backend/internal/database"
	"lobbyhub/backend/internal/hub"
	"lobbyhub/backend/internal/lobby"
	"lobbyhub/backend/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Friend relations here exist to feed the private-user notification channel;
// richer friend-graph management lives outside this service.

func relationTarget(c *gin.Context) (models.User, bool) {
	targetID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid target user ID"})
		return models.User{}, false
	}

	var target models.User
	if err := database.DB.First(&target, uint(targetID)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return models.User{}, false
	}
	return target, true
}

func callerView(c *gin.Context) (lobby.UserView, bool) {
	var caller models.User
	if err := database.DB.First(&caller, currentUserID(c)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return lobby.UserView{}, false
	}
	return lobby.UserView{ID: caller.ID, Nickname: caller.Nickname}, true
}

// SendRequest godoc
// @Summary      Send a friend request
// @Description  Creates a pending relation and notifies the target user.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Target User ID"
// @Success      201 {object} map[string]string
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse "Relation already exists"
// @Router       /users/{id}/request [post]
func SendRequest(c *gin.Context) {
	target, ok := relationTarget(c)
	if !ok {
		return
	}
	caller, ok := callerView(c)
	if !ok {
		return
	}
	if target.ID == caller.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot send a request to yourself"})
		return
	}

	relation := models.UserRelation{
		FromUserID: caller.ID,
		ToUserID:   target.ID,
		Status:     models.StatusPending,
	}
	if err := database.DB.Create(&relation).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Relation already exists"})
		return
	}

	Notifier.NotifyFriendEvent(hub.EventFriendRequestSent, target.ID, caller,
		fmt.Sprintf("%s sent you a friend request", caller.Nickname))
	c.JSON(http.StatusCreated, gin.H{"message": "Request sent"})
}

// AcceptRequest godoc
// @Summary      Accept a friend request
// @Description  Accepts a pending request from the target user and notifies them.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Requesting User ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse "No pending request"
// @Router       /users/{id}/accept [post]
func AcceptRequest(c *gin.Context) {
	target, ok := relationTarget(c)
	if !ok {
		return
	}
	caller, ok := callerView(c)
	if !ok {
		return
	}

	result := database.DB.Model(&models.UserRelation{}).
		Where("from_user_id = ? AND to_user_id = ? AND status = ?", target.ID, caller.ID, models.StatusPending).
		Update("status", models.StatusAccepted)
	if result.Error != nil || result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pending request from this user"})
		return
	}

	Notifier.NotifyFriendEvent(hub.EventFriendRequestAccepted, target.ID, caller,
		fmt.Sprintf("%s accepted your friend request", caller.Nickname))
	c.JSON(http.StatusOK, gin.H{"message": "Request accepted"})
}

// DeclineRequest godoc
// @Summary      Decline a friend request
// @Description  Declines a pending request from the target user and notifies them.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Requesting User ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse "No pending request"
// @Router       /users/{id}/decline [post]
func DeclineRequest(c *gin.Context) {
	target, ok := relationTarget(c)
	if !ok {
		return
	}
	caller, ok := callerView(c)
	if !ok {
		return
	}

	result := database.DB.
		Where("from_user_id = ? AND to_user_id = ? AND status = ?", target.ID, caller.ID, models.StatusPending).
		Delete(&models.UserRelation{})
	if result.Error != nil || result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No pending request from this user"})
		return
	}

	Notifier.NotifyFriendEvent(hub.EventFriendRequestDeclined, target.ID, caller,
		fmt.Sprintf("%s declined your friend request", caller.Nickname))
	c.JSON(http.StatusOK, gin.H{"message": "Request declined"})
}

// RemoveRelation godoc
// @Summary      Remove a friend
// @Description  Deletes the relation in both directions and notifies the other user.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Target User ID"
// @Success      200 {object} map[string]string
// @Failure      404 {object} ErrorResponse "No relation"
// @Router       /users/{id}/remove [post]
func RemoveRelation(c *gin.Context) {
	target, ok := relationTarget(c)
	if !ok {
		return
	}
	caller, ok := callerView(c)
	if !ok {
		return
	}

	result := database.DB.
		Where("(from_user_id = ? AND to_user_id = ?) OR (from_user_id = ? AND to_user_id = ?)",
			caller.ID, target.ID, target.ID, caller.ID).
		Delete(&models.UserRelation{})
	if result.Error != nil || result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No relation with this user"})
		return
	}

	Notifier.NotifyFriendEvent(hub.EventFriendRemoved, target.ID, caller,
		fmt.Sprintf("%s removed you as a friend", caller.Nickname))
	c.JSON(http.StatusOK, gin.H{"message": "Relation removed"})
}

// GetRelations godoc
// @Summary      Get user relations
// @Description  Fetches the caller's relations filtered by status and direction.
// @Tags         friendship
// @Produce      json
// @Security     BearerAuth
// @Param        status    query string false "Filter by status (pending, accepted)"
// @Param        direction query string true  "Direction (incoming, outgoing)"
// @Success      200 {array} PublicUserResponse
// @Failure      400 {object} ErrorResponse
// @Router       /users/me/relations [get]
func GetRelations(c *gin.Context) {
	userID := currentUserID(c)
	statusFilter := c.Query("status")
	directionFilter := c.Query("direction")

	query := database.DB
	switch directionFilter {
	case "incoming":
		query = query.Where("to_user_id = ?", userID).Preload("FromUser")
	case "outgoing":
		query = query.Where("from_user_id = ?", userID).Preload("ToUser")
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "A 'direction' query parameter (incoming or outgoing) is required."})
		return
	}
	if statusFilter != "" {
		query = query.Where("status = ?", statusFilter)
	}

	var relations []models.UserRelation
	if err := query.Find(&relations).Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch relations"})
		return
	}

	userResponses := make([]PublicUserResponse, 0, len(relations))
	for _, r := range relations {
		u := r.FromUser
		if directionFilter == "outgoing" {
			u = r.ToUser
		}
		if u.ID == 0 {
			continue
		}
		userResponses = append(userResponses, PublicUserResponse{ID: u.ID, Nickname: u.Nickname})
	}
	c.JSON(http.StatusOK, userResponses)
}
