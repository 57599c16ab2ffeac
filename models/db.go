package models

import (
	"errors"
	"log"
	"time"

	"storylab-server/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Domain errors surfaced by the store functions. Handlers map these to
// 404/403 responses.
var (
	ErrNotFound  = errors.New("resource not found")
	ErrForbidden = errors.New("forbidden")
)

var GormDB *gorm.DB

func InitDB() {
	if config.AppConfig == nil {
		log.Fatal("config.AppConfig is nil, call config.InitConfig first")
	}
	db, err := gorm.Open(postgres.Open(config.AppConfig.Database.DSN), &gorm.Config{})
	if err != nil {
		log.Fatalf("open database failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("database handle failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		log.Fatalf("migrate failed: %v", err)
	}

	GormDB = db
	log.Println("database connected")
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Project{}, &Screenplay{})
}
