package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sammogharabi/seda.fm-sub007/pkg/models"
)

type Store struct {
	*gorm.DB
}

// Open connects with the given dialector and runs migrations. TranslateError
// is on so duplicate-key violations surface as gorm.ErrDuplicatedKey across
// drivers.
func Open(dialector gorm.Dialector) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{DB: db}, nil
}

func NewMySQL(host, port, user, password, dbname string) (*Store, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	store, err := Open(mysql.Open(dsn))
	if err != nil {
		return nil, err
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return store, nil
}

func autoMigrate(db *gorm.DB) error {
	log.Info().Msg("running database migrations")

	return db.AutoMigrate(
		&models.User{},
		&models.Room{},
		&models.RoomMember{},
		&models.Session{},
		&models.QueueItem{},
		&models.Vote{},
	)
}
