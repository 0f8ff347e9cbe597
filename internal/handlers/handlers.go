package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"booklender/internal/models"
	"booklender/internal/services"
)

type LendingHandler struct {
	svc services.LoanService
}

func RegisterRoutes(r *gin.Engine, svc services.LoanService) {
	h := &LendingHandler{svc: svc}

	r.POST("/books", h.addBook)
	r.GET("/books", h.listBooks)
	r.POST("/books/:id/borrow", h.borrowBook)
	r.POST("/books/:id/return", h.returnBook)

	r.GET("/loans", h.listOpenLoans)

	r.POST("/users", h.registerUser)
	r.GET("/users/:email/loans", h.userLoans)
}

type addBookRequest struct {
	Title         string  `json:"title" binding:"required"`
	Author        string  `json:"author" binding:"required"`
	CoverImageURL string  `json:"cover_image_url" binding:"required"`
	YearPublished *int    `json:"year_published"`
	Description   string  `json:"description"`
	CategoryID    *string `json:"category_id"`
}

func (h *LendingHandler) addBook(c *gin.Context) {
	var req addBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	input := services.NewBook{
		Title:         req.Title,
		Author:        req.Author,
		CoverImageURL: req.CoverImageURL,
		YearPublished: req.YearPublished,
		Description:   req.Description,
	}
	if req.CategoryID != nil {
		catID, err := uuid.Parse(*req.CategoryID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category id"})
			return
		}
		input.CategoryID = &catID
	}

	book, err := h.svc.AddBook(input)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, book)
}

func (h *LendingHandler) listBooks(c *gin.Context) {
	books, err := h.svc.ListBooks()
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, books)
}

type borrowRequest struct {
	Email     string `json:"email" binding:"required,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func (h *LendingHandler) borrowBook(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	var req borrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	loan, err := h.svc.BorrowBook(bookID, services.UserIdentity{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, loan)
}

func (h *LendingHandler) returnBook(c *gin.Context) {
	bookID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	loan, err := h.svc.ReturnBook(bookID)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"loan":       loan,
		"user_email": loan.User.Email,
	})
}

func (h *LendingHandler) listOpenLoans(c *gin.Context) {
	loans, err := h.svc.ListOpenLoans()
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	type openLoanView struct {
		Book       models.Book `json:"book"`
		User       models.User `json:"user"`
		DateIssued time.Time   `json:"date_issued"`
	}
	view := make([]openLoanView, 0, len(loans))
	for _, l := range loans {
		view = append(view, openLoanView{Book: l.Book, User: l.User, DateIssued: l.DateIssued})
	}
	c.JSON(http.StatusOK, view)
}

type registerUserRequest struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Phone     string `json:"phone" binding:"required"`
}

func (h *LendingHandler) registerUser(c *gin.Context) {
	var req registerUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.svc.RegisterUser(req.FirstName, req.LastName, req.Email, req.Phone)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *LendingHandler) userLoans(c *gin.Context) {
	email := c.Param("email")

	user, books, err := h.svc.GetOpenLoansForUser(email)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":  user,
		"books": books,
	})
}

// errorStatus maps the service error taxonomy onto HTTP status codes:
// absent entities → 404, invalid input → 400, business-rule rejections and
// lost races → 409, anything else is a persistence fault → 500.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrBookNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrCategoryNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrInvalidUserProfile), errors.Is(err, services.ErrInvalidBook):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrBookUnavailable),
		errors.Is(err, services.ErrLoanLimitExceeded),
		errors.Is(err, services.ErrNoOpenLoan),
		errors.Is(err, services.ErrEmailTaken),
		errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
