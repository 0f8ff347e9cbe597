package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookStatus is the lending status of a book. It is maintained exclusively
// by the availability ledger, in lock-step with the existence of an open loan.
type BookStatus string

const (
	BookStatusAvailable BookStatus = "AVAILABLE"
	BookStatusLoanedOut BookStatus = "LOANED_OUT"
)

type Category struct {
	ID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name string    `gorm:"size:100;not null;uniqueIndex" json:"name"`
}

type Book struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Title         string     `gorm:"size:200;not null" json:"title"`
	Author        string     `gorm:"size:150;not null" json:"author"`
	CoverImageURL string     `gorm:"size:500;not null" json:"cover_image_url"`
	YearPublished *int       `json:"year_published"`
	Description   string     `gorm:"type:text" json:"description"`
	Status        BookStatus `gorm:"size:20;not null;index" json:"status"`
	DateAdded     time.Time  `gorm:"not null" json:"date_added"`
	CategoryID    *uuid.UUID `gorm:"type:uuid;index" json:"category_id"`
	Category      *Category  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL;" json:"-"`
}

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	FirstName string    `gorm:"size:100;not null" json:"first_name"`
	LastName  string    `gorm:"size:100;not null" json:"last_name"`
	Email     string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	Phone     string    `gorm:"size:50;not null" json:"phone"`
}

// BookLoan links a book to a borrowing user. A loan with DateReturned == nil
// is "open"; loans are closed by a return, never deleted.
type BookLoan struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"book_id"`
	Book         Book       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	UserID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User         User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	DateIssued   time.Time  `gorm:"not null;index" json:"date_issued"`
	DateReturned *time.Time `json:"date_returned"`
}

// IDs are generated client-side so the same models work on both the
// postgres and sqlite stores.

func (c *Category) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (b *Book) BeforeCreate(_ *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (l *BookLoan) BeforeCreate(_ *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// Open reports whether the loan has not yet been returned.
func (l *BookLoan) Open() bool {
	return l.DateReturned == nil
}
