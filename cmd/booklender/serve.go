package main

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"booklender/internal/config"
	"booklender/internal/handlers"
	"booklender/internal/ledger"
	"booklender/internal/repositories"
	"booklender/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the lending API server",
	RunE: func(_ *cobra.Command, _ []string) error {
		return serve()
	},
}

func serve() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		return err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	catRepo := repositories.NewCategoryRepository(db)
	lgr := ledger.New(db)

	// Borrow/return transactions run serializable so commit-time checks hold
	// even under concurrent load; serialization failures surface as conflicts.
	loanService := services.NewLoanService(db, lgr, userRepo, bookRepo, loanRepo, catRepo, nil,
		&sql.TxOptions{Isolation: sql.LevelSerializable})

	router := gin.Default()
	handlers.RegisterRoutes(router, loanService)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	log.Printf("[INFO] serve: listening on %s", cfg.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
