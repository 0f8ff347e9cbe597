// Package ledger maintains each book's availability status. It is the only
// code path that writes Book.Status, keeping the status column in lock-step
// with the existence of an open loan.
package ledger

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklender/internal/models"
)

var (
	// ErrNotFound is returned when the referenced book does not exist.
	ErrNotFound = errors.New("ledger: book not found")

	// ErrConflict is returned when a status transition's precondition no
	// longer holds: the book already moved to the target state, or a
	// concurrent operation transitioned it since it was last observed.
	ErrConflict = errors.New("ledger: conflicting status transition")
)

// Ledger performs availability transitions for books. Every method takes the
// caller's transaction handle so the transition commits or rolls back together
// with the loan mutation it belongs to.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// IsAvailable reports whether the book can currently be lent out.
func (l *Ledger) IsAvailable(tx *gorm.DB, bookID uuid.UUID) (bool, error) {
	if tx == nil {
		tx = l.db
	}
	var book models.Book
	if err := tx.Select("status").First(&book, "id = ?", bookID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotFound
		}
		return false, err
	}
	return book.Status == models.BookStatusAvailable, nil
}

// MarkLoanedOut transitions AVAILABLE → LOANED_OUT.
func (l *Ledger) MarkLoanedOut(tx *gorm.DB, bookID uuid.UUID) error {
	return l.transition(tx, bookID, models.BookStatusAvailable, models.BookStatusLoanedOut)
}

// MarkAvailable transitions LOANED_OUT → AVAILABLE.
func (l *Ledger) MarkAvailable(tx *gorm.DB, bookID uuid.UUID) error {
	return l.transition(tx, bookID, models.BookStatusLoanedOut, models.BookStatusAvailable)
}

// transition flips the status with a conditional update. The WHERE clause on
// the current status is the optimistic concurrency check: of two racing
// transitions only one matches the row, the other sees zero rows affected and
// fails with ErrConflict.
func (l *Ledger) transition(tx *gorm.DB, bookID uuid.UUID, from, to models.BookStatus) error {
	if tx == nil {
		tx = l.db
	}
	res := tx.Model(&models.Book{}).
		Where("id = ? AND status = ?", bookID, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Zero rows means either the book is gone or it is not in `from`.
		var count int64
		if err := tx.Model(&models.Book{}).Where("id = ?", bookID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}
	return nil
}
