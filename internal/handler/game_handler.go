package handler

import (
	"net/http"

	"lobbyhub/backend/internal/database"
	"lobbyhub/backend/internal/models"

	"github.com/gin-gonic/gin"
)

// region --- DTOs ---

type GameResponse struct {
	ID         uint   `json:"id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
	MinPlayers int    `json:"min_players"`
	MaxPlayers int    `json:"max_players"`
}

func newGameResponse(game models.Game) GameResponse {
	return GameResponse{
		ID:         game.ID,
		Slug:       game.Slug,
		Name:       game.Name,
		MinPlayers: game.MinPlayers,
		MaxPlayers: game.MaxPlayers,
	}
}

// endregion

// GetGames godoc
// @Summary      List games
// @Description  Gets a paginated list of the game catalog.
// @Tags         games
// @Produce      json
// @Security     BearerAuth
// @Param        page  query int false "Page number" default(1)
// @Param        limit query int false "Items per page" default(20)
// @Success      200 {object} PaginatedResponse[GameResponse]
// @Router       /games [get]
func GetGames(c *gin.Context) {
	page, limit := pageParams(c, 20)

	var total int64
	if err := database.DB.Model(&models.Game{}).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch games"})
		return
	}
	var games []models.Game
	if err := database.DB.Order("name ASC").Offset((page - 1) * limit).Limit(limit).Find(&games).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch games"})
		return
	}

	responses := make([]GameResponse, 0, len(games))
	for _, game := range games {
		responses = append(responses, newGameResponse(game))
	}
	c.JSON(http.StatusOK, NewPaginatedResponse(responses, total, page, limit))
}

// GetGameBySlug godoc
// @Summary      Get a game by slug
// @Description  Gets a single game from the catalog.
// @Tags         games
// @Produce      json
// @Security     BearerAuth
// @Param        slug path string true "Game slug"
// @Success      200 {object} GameResponse
// @Failure      404 {object} ErrorResponse "Game not found"
// @Router       /games/{slug} [get]
func GetGameBySlug(c *gin.Context) {
	var game models.Game
	if err := database.DB.Where("slug = ?", c.Param("slug")).First(&game).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
		return
	}
	c.JSON(http.StatusOK, newGameResponse(game))
}
