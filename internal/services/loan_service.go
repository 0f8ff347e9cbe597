package services

import (
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"booklender/internal/ledger"
	"booklender/internal/models"
	"booklender/internal/repositories"
)

// ─── Lending Policy Constants ─────────────────────────────────────────────────

// MaxOpenLoans is the maximum number of simultaneous open loans per user.
const MaxOpenLoans = 3

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrBookNotFound is returned when the requested book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrUserNotFound is returned when no user matches the given email.
	ErrUserNotFound = errors.New("user not found")

	// ErrBookUnavailable is returned when the book is already loaned out.
	ErrBookUnavailable = errors.New("book is not available")

	// ErrLoanLimitExceeded is returned when the user already holds the maximum
	// number of open loans.
	ErrLoanLimitExceeded = errors.New("user has reached the open loan limit")

	// ErrInvalidUserProfile is returned when a borrow would provision a new
	// user but required profile fields are missing.
	ErrInvalidUserProfile = errors.New("incomplete user profile")

	// ErrNoOpenLoan is returned when a return is attempted on a book that has
	// no open loan.
	ErrNoOpenLoan = errors.New("no open loan for this book")

	// ErrEmailTaken is returned when registering a user with an email that is
	// already on file.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidBook is returned when adding a book with required fields missing.
	ErrInvalidBook = errors.New("missing required book fields")

	// ErrCategoryNotFound is returned when adding a book under a category that
	// does not exist.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrConflict is returned when a concurrent operation invalidated this
	// operation's preconditions between check and commit. The caller may retry
	// after re-reading current state.
	ErrConflict = errors.New("operation lost a concurrent race")
)

// ─── Service Interface ────────────────────────────────────────────────────────

// UserIdentity identifies the borrowing user. Email is the lookup key; the
// profile fields are only consulted when no user with that email exists yet,
// in which case all of them are required to provision one.
type UserIdentity struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
}

// NewBook carries the fields needed to add a book to the catalog.
type NewBook struct {
	Title         string
	Author        string
	CoverImageURL string
	YearPublished *int
	Description   string
	CategoryID    *uuid.UUID
}

// LoanService defines the lending operations of the tracker.
type LoanService interface {
	BorrowBook(bookID uuid.UUID, identity UserIdentity) (*models.BookLoan, error)
	ReturnBook(bookID uuid.UUID) (*models.BookLoan, error)
	GetOpenLoansForUser(email string) (*models.User, []models.Book, error)
	ListOpenLoans() ([]models.BookLoan, error)

	AddBook(input NewBook) (*models.Book, error)
	ListBooks() ([]models.Book, error)
	RegisterUser(firstName, lastName, email, phone string) (*models.User, error)
}

// ─── Implementation ───────────────────────────────────────────────────────────

type loanService struct {
	db       *gorm.DB
	ledger   *ledger.Ledger
	userRepo repositories.UserRepository
	bookRepo repositories.BookRepository
	loanRepo repositories.LoanRepository
	catRepo  repositories.CategoryRepository
	txOpts   []*sql.TxOptions
	now      func() time.Time
}

// NewLoanService wires up all dependencies and returns a LoanService.
// now may be nil, in which case the wall clock (UTC) is used. txOpts, when
// given, are applied to every borrow/return transaction — production postgres
// deployments pass sql.LevelSerializable here.
func NewLoanService(
	db *gorm.DB,
	lgr *ledger.Ledger,
	userRepo repositories.UserRepository,
	bookRepo repositories.BookRepository,
	loanRepo repositories.LoanRepository,
	catRepo repositories.CategoryRepository,
	now func() time.Time,
	txOpts ...*sql.TxOptions,
) LoanService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &loanService{
		db:       db,
		ledger:   lgr,
		userRepo: userRepo,
		bookRepo: bookRepo,
		loanRepo: loanRepo,
		catRepo:  catRepo,
		txOpts:   txOpts,
		now:      now,
	}
}

// ─── Borrow ───────────────────────────────────────────────────────────────────

// BorrowBook implements the transactional borrow flow.
//
// All checks and mutations run in a single transaction: resolve the book,
// verify availability, resolve or provision the user, verify the open-loan
// limit, create the loan and flip the ledger status. The availability and
// limit checks are re-enforced at commit time — the ledger transition is
// conditional on the status still being AVAILABLE, and the open-loan count is
// re-validated after the insert — so a lost race rolls back with ErrConflict
// instead of partially applying.
func (s *loanService) BorrowBook(bookID uuid.UUID, identity UserIdentity) (*models.BookLoan, error) {
	var created *models.BookLoan

	err := s.db.Transaction(func(tx *gorm.DB) error {
		// 1. Resolve the book.
		if _, err := s.bookRepo.GetByID(tx, bookID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return err
		}

		// 2. Availability check (re-enforced by MarkLoanedOut below).
		available, err := s.ledger.IsAvailable(tx, bookID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return ErrBookNotFound
			}
			return err
		}
		if !available {
			log.Printf("[WARN] BorrowBook: book %s is not available", bookID)
			return ErrBookUnavailable
		}

		// 3. Resolve or provision the user.
		user, err := s.resolveOrCreateUser(tx, identity)
		if err != nil {
			return err
		}

		// 4. Open-loan limit.
		open, err := s.loanRepo.CountOpenByUser(tx, user.ID)
		if err != nil {
			return err
		}
		if open >= MaxOpenLoans {
			log.Printf("[WARN] BorrowBook: user %s already holds %d open loans", user.Email, open)
			return ErrLoanLimitExceeded
		}

		// 5. Create the loan and flip the ledger.
		loan := &models.BookLoan{
			BookID:     bookID,
			UserID:     user.ID,
			DateIssued: s.now(),
		}
		if err := s.loanRepo.Create(tx, loan); err != nil {
			log.Printf("[ERROR] BorrowBook: failed to create loan for book %s / user %s: %v", bookID, user.Email, err)
			return mapStoreError(err)
		}
		if err := s.ledger.MarkLoanedOut(tx, bookID); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				// The book was available at step 2 but another borrow won the race.
				log.Printf("[WARN] BorrowBook: lost race for book %s", bookID)
				return ErrConflict
			}
			return err
		}

		// Commit-time re-validation of the limit: the count now includes the
		// loan created above.
		open, err = s.loanRepo.CountOpenByUser(tx, user.ID)
		if err != nil {
			return err
		}
		if open > MaxOpenLoans {
			log.Printf("[WARN] BorrowBook: loan limit violated at commit for user %s (%d open)", user.Email, open)
			return ErrConflict
		}

		loan.User = *user
		created = loan
		return nil
	}, s.txOpts...)

	if err != nil {
		// A serialization failure at commit surfaces here, not inside the closure.
		return nil, mapStoreError(err)
	}
	log.Printf("[INFO] BorrowBook: loan %s created for book %s / user %s", created.ID, bookID, created.User.Email)
	return created, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnBook closes the open loan for the given book and marks the book
// available again, all in one transaction. Returning a book with no open loan
// is reported as ErrNoOpenLoan, not treated as a fault.
func (s *loanService) ReturnBook(bookID uuid.UUID) (*models.BookLoan, error) {
	var closed *models.BookLoan

	err := s.db.Transaction(func(tx *gorm.DB) error {
		loan, err := s.loanRepo.FindOpenByBook(tx, bookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoOpenLoan
			}
			return err
		}

		returnedAt := s.now()
		affected, err := s.loanRepo.MarkReturned(tx, loan.ID, returnedAt)
		if err != nil {
			return err
		}
		if affected == 0 {
			// The loan was closed by a concurrent return after we read it.
			log.Printf("[WARN] ReturnBook: loan %s already closed concurrently", loan.ID)
			return ErrConflict
		}

		if err := s.ledger.MarkAvailable(tx, bookID); err != nil {
			if errors.Is(err, ledger.ErrConflict) {
				return ErrConflict
			}
			return err
		}

		loan.DateReturned = &returnedAt
		closed = loan
		return nil
	}, s.txOpts...)

	if err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("[INFO] ReturnBook: loan %s closed for book %s / user %s", closed.ID, bookID, closed.User.Email)
	return closed, nil
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// GetOpenLoansForUser returns the user matching email and the books they
// currently hold, most recently issued first.
func (s *loanService) GetOpenLoansForUser(email string) (*models.User, []models.Book, error) {
	user, err := s.userRepo.GetByEmail(nil, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	loans, err := s.loanRepo.ListOpenByUser(nil, user.ID)
	if err != nil {
		return nil, nil, err
	}
	books := make([]models.Book, 0, len(loans))
	for _, loan := range loans {
		books = append(books, loan.Book)
	}
	return user, books, nil
}

// ListOpenLoans returns every open loan with book and user preloaded — the
// "currently loaned out" view.
func (s *loanService) ListOpenLoans() ([]models.BookLoan, error) {
	return s.loanRepo.ListOpen(nil)
}

// ─── Catalog & Registration ───────────────────────────────────────────────────

// AddBook adds a book to the catalog in AVAILABLE state.
func (s *loanService) AddBook(input NewBook) (*models.Book, error) {
	if input.Title == "" || input.Author == "" || input.CoverImageURL == "" {
		return nil, ErrInvalidBook
	}
	if input.CategoryID != nil {
		if _, err := s.catRepo.GetByID(nil, *input.CategoryID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrCategoryNotFound
			}
			return nil, err
		}
	}
	book := &models.Book{
		Title:         input.Title,
		Author:        input.Author,
		CoverImageURL: input.CoverImageURL,
		YearPublished: input.YearPublished,
		Description:   input.Description,
		CategoryID:    input.CategoryID,
		Status:        models.BookStatusAvailable,
		DateAdded:     s.now(),
	}
	if err := s.bookRepo.Create(nil, book); err != nil {
		log.Printf("[ERROR] AddBook: failed to create book %q: %v", input.Title, err)
		return nil, err
	}
	log.Printf("[INFO] AddBook: created book %q (id=%s)", book.Title, book.ID)
	return book, nil
}

// ListBooks returns the whole catalog, newest additions first.
func (s *loanService) ListBooks() ([]models.Book, error) {
	return s.bookRepo.List(nil)
}

// RegisterUser creates a user record up front, outside of any borrow.
func (s *loanService) RegisterUser(firstName, lastName, email, phone string) (*models.User, error) {
	if firstName == "" || lastName == "" || email == "" || phone == "" {
		return nil, ErrInvalidUserProfile
	}
	user := &models.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Phone:     phone,
	}
	if err := s.userRepo.Create(nil, user); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		log.Printf("[ERROR] RegisterUser: failed to create user %s: %v", email, err)
		return nil, err
	}
	log.Printf("[INFO] RegisterUser: created user %s (id=%s)", user.Email, user.ID)
	return user, nil
}

// ─── Internal Helpers ─────────────────────────────────────────────────────────

// resolveOrCreateUser looks the user up by email and, when absent, provisions
// a new record from the identity's profile fields. Provisioning requires all
// fields; a partial profile fails with ErrInvalidUserProfile.
func (s *loanService) resolveOrCreateUser(tx *gorm.DB, identity UserIdentity) (*models.User, error) {
	if identity.Email == "" {
		return nil, ErrInvalidUserProfile
	}

	user, err := s.userRepo.GetByEmail(tx, identity.Email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if identity.FirstName == "" || identity.LastName == "" || identity.Phone == "" {
		return nil, ErrInvalidUserProfile
	}

	user = &models.User{
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Email:     identity.Email,
		Phone:     identity.Phone,
	}
	if err := s.userRepo.Create(tx, user); err != nil {
		if isUniqueViolation(err) {
			// A concurrent borrow provisioned the same email first.
			return nil, ErrConflict
		}
		return nil, err
	}
	log.Printf("[INFO] BorrowBook: provisioned new user %s (id=%s)", user.Email, user.ID)
	return user, nil
}

// isUniqueViolation checks whether a unique-constraint error occurred.
// PostgreSQL error code 23505 = unique_violation; SQLite reports 2067 / 1555.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "UNIQUE constraint failed")
}

// mapStoreError translates store-level concurrency faults into the service
// taxonomy. PostgreSQL 40001 = serialization_failure, 40P01 = deadlock.
// Anything else is a persistence fault and propagates as-is.
func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "40001") || strings.Contains(msg, "40P01") || isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}
