package store

import (
	"context"

	"tucomercio/internal/models"

	"github.com/lib/pq"
)

const userColumns = `id, email, display_name, phone, role, business_id, disabled, created_at`

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, display_name, phone, role, business_id, disabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Email, u.DisplayName, u.Phone, u.Role, u.BusinessID, u.Disabled, u.CreatedAt)
	return mapErr("create_user", "user", u.ID, err)
}

// DeleteUser removes a profile that was never handed out.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapErr("delete_user", "user", id, err)
	}
	return requireRow(res, "user", id)
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr("get_user", "user", id, err)
	}
	return &u, nil
}

func (s *Store) UpdateProfile(ctx context.Context, id, displayName, phone string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u, `
		UPDATE users SET display_name = $2, phone = $3
		WHERE id = $1
		RETURNING `+userColumns, id, displayName, phone)
	if err != nil {
		return nil, mapErr("update_profile", "user", id, err)
	}
	return &u, nil
}

func (s *Store) SetUserDisabled(ctx context.Context, id string, disabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET disabled = $2 WHERE id = $1`, id, disabled)
	if err != nil {
		return mapErr("set_user_disabled", "user", id, err)
	}
	return requireRow(res, "user", id)
}

func (s *Store) ListUsers(ctx context.Context, role models.Role, page, size int) (models.Page[models.User], error) {
	page, size = models.NormalizePage(page, size)
	out := models.Page[models.User]{Page: page, PageSize: size, Items: []models.User{}}

	var a args
	where := ""
	if role != "" {
		where = ` WHERE role = ` + a.add(role)
	}

	total, err := count(ctx, s.db, `SELECT COUNT(*) FROM users`+where, a...)
	if err != nil {
		return out, mapErr("count_users", "user", "", err)
	}
	out.Total = total

	query := `SELECT ` + userColumns + ` FROM users` + where +
		` ORDER BY created_at DESC LIMIT ` + a.add(size) + ` OFFSET ` + a.add((page-1)*size)
	if err := s.db.SelectContext(ctx, &out.Items, query, a...); err != nil {
		return out, mapErr("list_users", "user", "", err)
	}
	return out, nil
}

// UserIDsByRole returns active users holding any of roles. No roles means everyone.
func (s *Store) UserIDsByRole(ctx context.Context, roles ...models.Role) ([]string, error) {
	ids := []string{}
	var err error
	if len(roles) == 0 {
		err = s.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE NOT disabled`)
	} else {
		names := make([]string, len(roles))
		for i, r := range roles {
			names[i] = string(r)
		}
		err = s.db.SelectContext(ctx, &ids, `SELECT id FROM users WHERE NOT disabled AND role = ANY($1)`, pq.Array(names))
	}
	if err != nil {
		return nil, mapErr("user_ids_by_role", "user", "", err)
	}
	return ids, nil
}

func (s *Store) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.GetContext(ctx, &c, `SELECT id, email, phone, display_name, disabled FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapErr("get_contact", "user", id, err)
	}
	return &c, nil
}
