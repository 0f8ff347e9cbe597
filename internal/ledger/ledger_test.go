package ledger

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"booklender/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Category{}, &models.Book{}))
	return db
}

func seedBook(t *testing.T, db *gorm.DB, status models.BookStatus) *models.Book {
	t.Helper()
	book := &models.Book{
		Title:         "Dead Souls",
		Author:        "Nikolai Gogol",
		CoverImageURL: "https://covers.example/ds.jpg",
		Status:        status,
		DateAdded:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, db.Create(book).Error)
	return book
}

func TestIsAvailable(t *testing.T) {
	db := openTestDB(t)
	lgr := New(db)

	available := seedBook(t, db, models.BookStatusAvailable)
	loaned := seedBook(t, db, models.BookStatusLoanedOut)

	ok, err := lgr.IsAvailable(nil, available.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lgr.IsAvailable(nil, loaned.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = lgr.IsAvailable(nil, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkLoanedOut(t *testing.T) {
	db := openTestDB(t)
	lgr := New(db)
	book := seedBook(t, db, models.BookStatusAvailable)

	require.NoError(t, lgr.MarkLoanedOut(nil, book.ID))

	var reloaded models.Book
	require.NoError(t, db.First(&reloaded, "id = ?", book.ID).Error)
	assert.Equal(t, models.BookStatusLoanedOut, reloaded.Status)

	// Second transition loses: the precondition no longer holds.
	assert.ErrorIs(t, lgr.MarkLoanedOut(nil, book.ID), ErrConflict)

	assert.ErrorIs(t, lgr.MarkLoanedOut(nil, uuid.New()), ErrNotFound)
}

func TestMarkAvailable(t *testing.T) {
	db := openTestDB(t)
	lgr := New(db)
	book := seedBook(t, db, models.BookStatusLoanedOut)

	require.NoError(t, lgr.MarkAvailable(nil, book.ID))

	var reloaded models.Book
	require.NoError(t, db.First(&reloaded, "id = ?", book.ID).Error)
	assert.Equal(t, models.BookStatusAvailable, reloaded.Status)

	// Double return.
	assert.ErrorIs(t, lgr.MarkAvailable(nil, book.ID), ErrConflict)

	assert.ErrorIs(t, lgr.MarkAvailable(nil, uuid.New()), ErrNotFound)
}

func TestTransitionsRollBackWithCallerTransaction(t *testing.T) {
	db := openTestDB(t)
	lgr := New(db)
	book := seedBook(t, db, models.BookStatusAvailable)

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := lgr.MarkLoanedOut(tx, book.ID); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	var reloaded models.Book
	require.NoError(t, db.First(&reloaded, "id = ?", book.ID).Error)
	assert.Equal(t, models.BookStatusAvailable, reloaded.Status, "rolled-back transition must not be visible")
}
