package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"procurement-backend/internal/access"
	"procurement-backend/internal/apperr"
	"procurement-backend/internal/audit"
	"procurement-backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

type Input struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
}

type Summary struct {
	Total  int64 `json:"user_count"`
	Admins int64 `json:"admin_count"`
	Users  int64 `json:"regular_user_count"`
}

type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// validate checks in; the password is required only when creating.
func validate(in *Input, creating bool) error {
	var verr apperr.ValidationErrors

	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		verr.Add("name", "name is required")
	} else if len(in.Name) > 255 {
		verr.Add("name", "name may not be longer than 255 characters")
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" {
		verr.Add("email", "email is required")
	} else if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		verr.Add("email", "email must be a valid email address")
	}

	if creating && in.Password == "" {
		verr.Add("password", "password is required")
	} else if in.Password != "" && len(in.Password) < minPasswordLength {
		verr.Add("password", fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	if !in.Role.Valid() {
		verr.Add("role", "role must be Admin or User")
	}
	return verr.Err()
}

func ensureUniqueEmail(tx *gorm.DB, email string, exceptID uint) error {
	var count int64
	q := tx.Model(&models.User{}).Where("email = ?", email)
	if exceptID > 0 {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return apperr.Conflict("email %s is already registered", email)
	}
	return nil
}

func hashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) Create(ctx context.Context, actor access.Actor, in Input) (*models.User, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return s.create(ctx, &actor, in)
}

// Seed creates a user without an acting admin. Used by the operator CLI.
func (s *Service) Seed(ctx context.Context, in Input) (*models.User, error) {
	return s.create(ctx, nil, in)
}

func (s *Service) create(ctx context.Context, actor *access.Actor, in Input) (*models.User, error) {
	if err := validate(&in, true); err != nil {
		return nil, err
	}
	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{Name: in.Name, Email: in.Email, PasswordHash: hash, Role: in.Role}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUniqueEmail(tx, user.Email, 0); err != nil {
			return err
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		if actor == nil {
			return nil
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       *actor,
			EntityType:  audit.EntityUser,
			EntityID:    user.ID,
			Action:      models.AuditActionCreate,
			Description: fmt.Sprintf("User %s created with role %s", user.Email, user.Role),
			After:       snapshotOf(&user),
		})
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Service) List(ctx context.Context, actor access.Actor) ([]models.User, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	var rows []models.User
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, actor access.Actor, id uint) (*models.User, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	return s.find(s.db.WithContext(ctx), id)
}

func (s *Service) find(db *gorm.DB, id uint) (*models.User, error) {
	var u models.User
	if err := db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user", id)
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &u, nil
}

// Update changes name, email and role, and the password when one is given.
// An admin cannot change their own role.
func (s *Service) Update(ctx context.Context, actor access.Actor, id uint, in Input) (*models.User, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	if err := validate(&in, false); err != nil {
		return nil, err
	}

	var updated *models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.find(tx, id)
		if err != nil {
			return err
		}
		if u.ID == actor.ID && in.Role != u.Role {
			return apperr.Invalid("role", "you cannot change your own role")
		}
		if err := ensureUniqueEmail(tx, in.Email, u.ID); err != nil {
			return err
		}

		before := snapshotOf(u)
		changes := map[string]any{"name": in.Name, "email": in.Email, "role": in.Role}
		if in.Password != "" {
			hash, err := hashPassword(in.Password)
			if err != nil {
				return err
			}
			changes["password_hash"] = hash
		}
		if err := tx.Model(u).Updates(changes).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}

		u.Name, u.Email, u.Role = in.Name, in.Email, in.Role
		updated = u
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityUser,
			EntityID:    u.ID,
			Action:      models.AuditActionUpdate,
			Description: fmt.Sprintf("User %s updated", u.Email),
			Before:      before,
			After:       snapshotOf(u),
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a user that owns no purchase orders or supplies. An admin
// cannot delete their own account.
func (s *Service) Delete(ctx context.Context, actor access.Actor, id uint) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	if id == actor.ID {
		return apperr.Conflict("you cannot delete your own account")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := s.find(tx, id)
		if err != nil {
			return err
		}

		var owned int64
		if err := tx.Model(&models.PurchaseOrder{}).Where("user_id = ?", u.ID).Count(&owned).Error; err != nil {
			return fmt.Errorf("count purchase orders: %w", err)
		}
		var supplies int64
		if err := tx.Model(&models.Supply{}).Where("user_id = ?", u.ID).Count(&supplies).Error; err != nil {
			return fmt.Errorf("count supplies: %w", err)
		}
		if owned+supplies > 0 {
			return apperr.Conflict("user %s still owns %d purchase orders and %d supplies", u.Email, owned, supplies)
		}

		if err := tx.Delete(&models.User{}, u.ID).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return audit.WriteLog(tx, audit.LogOptions{
			Actor:       actor,
			EntityType:  audit.EntityUser,
			EntityID:    u.ID,
			Action:      models.AuditActionDelete,
			Description: fmt.Sprintf("User %s deleted", u.Email),
			Before:      snapshotOf(u),
		})
	})
}

func (s *Service) Summary(ctx context.Context, actor access.Actor) (Summary, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return Summary{}, err
	}

	var out Summary
	db := s.db.WithContext(ctx)
	if err := db.Model(&models.User{}).Count(&out.Total).Error; err != nil {
		return Summary{}, fmt.Errorf("count users: %w", err)
	}
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&out.Admins).Error; err != nil {
		return Summary{}, fmt.Errorf("count admins: %w", err)
	}
	if err := db.Model(&models.User{}).Where("role = ?", models.RoleUser).Count(&out.Users).Error; err != nil {
		return Summary{}, fmt.Errorf("count users: %w", err)
	}
	return out, nil
}

func snapshotOf(u *models.User) map[string]any {
	return map[string]any{"id": u.ID, "name": u.Name, "email": u.Email, "role": u.Role}
}
