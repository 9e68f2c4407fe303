package database

import (
	"log"
	"os"
	"time"

	"lobbyhub/backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect initializes the database connection and runs migrations.
func Connect(dsn string) {
	var err error

	// Configure GORM logger
	customLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold:             200 * time.Millisecond, // Slow SQL threshold
			LogLevel:                  logger.Warn,            // Log level
			IgnoreRecordNotFoundError: true,                   // Ignore ErrRecordNotFound error for logger
			Colorful:                  true,                   // Enable color
		},
	)

	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: customLogger,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	log.Println("Database connection established.")

	if err := Migrate(DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	log.Println("Database migrated successfully.")
}

// Migrate runs the schema migrations for every model the service persists.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.UserRelation{},
		&models.Game{},
		&models.Lobby{},
		&models.LobbyPlayer{},
		&models.LobbyMessage{},
	)
}

// SeedGames inserts the game catalog if it is empty. The catalog is reference
// data; in production it is managed out of band.
func SeedGames(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Game{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	games := []models.Game{
		{Slug: "chess", Name: "Chess", MinPlayers: 2, MaxPlayers: 2},
		{Slug: "catan", Name: "Settlers of Catan", MinPlayers: 3, MaxPlayers: 4},
		{Slug: "codenames", Name: "Codenames", MinPlayers: 4, MaxPlayers: 8},
		{Slug: "solitaire", Name: "Solitaire", MinPlayers: 1, MaxPlayers: 1},
	}
	return db.Create(&games).Error
}
