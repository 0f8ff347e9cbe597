package repositories

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklender/internal/models"
)

type UserRepository interface {
	Create(db *gorm.DB, user *models.User) error
	GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error)
	GetByEmail(db *gorm.DB, email string) (*models.User, error)
}

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	List(db *gorm.DB) ([]models.Book, error)
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error)
}

type LoanRepository interface {
	Create(db *gorm.DB, loan *models.BookLoan) error
	FindOpenByBook(db *gorm.DB, bookID uuid.UUID) (*models.BookLoan, error)
	CountOpenByUser(db *gorm.DB, userID uuid.UUID) (int64, error)
	ListOpenByUser(db *gorm.DB, userID uuid.UUID) ([]models.BookLoan, error)
	ListOpen(db *gorm.DB) ([]models.BookLoan, error)
	MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt time.Time) (int64, error)
}

type CategoryRepository interface {
	GetByID(db *gorm.DB, id uuid.UUID) (*models.Category, error)
}

// concrete implementations

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(db *gorm.DB, user *models.User) error {
	if db == nil {
		db = r.db
	}
	return db.Create(user).Error
}

func (r *userRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(db *gorm.DB, email string) (*models.User, error) {
	if db == nil {
		db = r.db
	}
	var user models.User
	if err := db.First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) List(db *gorm.DB) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	var books []models.Book
	if err := db.Order("date_added DESC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

func (r *bookRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := db.First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

type loanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) LoanRepository {
	return &loanRepository{db: db}
}

func (r *loanRepository) Create(db *gorm.DB, loan *models.BookLoan) error {
	if db == nil {
		db = r.db
	}
	return db.Create(loan).Error
}

func (r *loanRepository) FindOpenByBook(db *gorm.DB, bookID uuid.UUID) (*models.BookLoan, error) {
	if db == nil {
		db = r.db
	}
	var loan models.BookLoan
	err := db.
		Preload("User").
		Preload("Book").
		Where("book_id = ? AND date_returned IS NULL", bookID).
		First(&loan).Error
	if err != nil {
		return nil, err
	}
	return &loan, nil
}

func (r *loanRepository) CountOpenByUser(db *gorm.DB, userID uuid.UUID) (int64, error) {
	if db == nil {
		db = r.db
	}
	var count int64
	err := db.Model(&models.BookLoan{}).
		Where("user_id = ? AND date_returned IS NULL", userID).
		Count(&count).Error
	return count, err
}

func (r *loanRepository) ListOpenByUser(db *gorm.DB, userID uuid.UUID) ([]models.BookLoan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.BookLoan
	err := db.
		Preload("Book").
		Where("user_id = ? AND date_returned IS NULL", userID).
		Order("date_issued DESC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepository) ListOpen(db *gorm.DB) ([]models.BookLoan, error) {
	if db == nil {
		db = r.db
	}
	var loans []models.BookLoan
	err := db.
		Preload("Book").
		Preload("User").
		Where("date_returned IS NULL").
		Order("date_issued DESC").
		Find(&loans).Error
	if err != nil {
		return nil, err
	}
	return loans, nil
}

// MarkReturned closes the loan only if it is still open and reports how many
// rows changed, so a concurrent double-return shows up as zero rows.
func (r *loanRepository) MarkReturned(db *gorm.DB, loanID uuid.UUID, returnedAt time.Time) (int64, error) {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.BookLoan{}).
		Where("id = ? AND date_returned IS NULL", loanID).
		Update("date_returned", returnedAt)
	return res.RowsAffected, res.Error
}

type categoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) CategoryRepository {
	return &categoryRepository{db: db}
}

func (r *categoryRepository) GetByID(db *gorm.DB, id uuid.UUID) (*models.Category, error) {
	if db == nil {
		db = r.db
	}
	var cat models.Category
	if err := db.First(&cat, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cat, nil
}
