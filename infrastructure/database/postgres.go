package database

import (
	"database/sql"
	"fmt"
	"time"

	"paygate-vip/infrastructure/config"

	"github.com/gofiber/fiber/v2/log"
	_ "github.com/lib/pq"
)

func NewPostgres(cfg config.PostgresConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(time.Second * 15)

	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Infow("connected to postgres", "host", cfg.Host, "database", cfg.Name)

	return db, nil
}
