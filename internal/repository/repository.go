package repository

import (
	"context"
	"errors"
	"strings"

	"apartner/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ErrConflict is returned when a guarded update matched no row because the
// record was no longer in the expected state.
var ErrConflict = errors.New("record changed concurrently")

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// DB exposes the underlying handle for jobs and tests
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// IsNotFound reports whether err means the record does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsUniqueViolation reports whether err is a unique constraint failure
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// GetUser retrieves a user by ID
func (r *Repository) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UserType returns the current role of a user
func (r *Repository) UserType(ctx context.Context, id uint) (models.UserType, error) {
	user, err := r.GetUser(ctx, id)
	if err != nil {
		return "", err
	}
	return user.UserType, nil
}

// GetRoom retrieves a room by ID
func (r *Repository) GetRoom(ctx context.Context, id uint) (*models.Room, error) {
	var room models.Room
	if err := r.db.WithContext(ctx).First(&room, id).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// GetApartment retrieves an apartment by ID
func (r *Repository) GetApartment(ctx context.Context, id uint) (*models.Apartment, error) {
	var apartment models.Apartment
	if err := r.db.WithContext(ctx).First(&apartment, id).Error; err != nil {
		return nil, err
	}
	return &apartment, nil
}

// IsRenterInApartment reports whether the user rents any room of the apartment
func (r *Repository) IsRenterInApartment(ctx context.Context, userID, apartmentID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Room{}).
		Where("apartment_id = ? AND renter_id = ?", apartmentID, userID).
		Count(&count).Error
	return count > 0, err
}

// Notify stores an in-app message
func (r *Repository) Notify(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

// MessagesFor lists the messages received by a user, newest first
func (r *Repository) MessagesFor(ctx context.Context, userID uint) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.WithContext(ctx).
		Where("receiver_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&msgs).Error
	return msgs, err
}
