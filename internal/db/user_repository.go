package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

type UserRepository struct {
	queue *DBQueue
}

func NewUserRepository(queue *DBQueue) *UserRepository {
	return &UserRepository{queue: queue}
}

// CreateOrUpdate registers the user or refreshes their Telegram names.
// Profile fields (nickname, age, bio, interests, photo) are left untouched.
func (r *UserRepository) CreateOrUpdate(user *models.User) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO users (id, first_name, last_name, username)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				first_name = excluded.first_name,
				last_name = excluded.last_name,
				username = excluded.username
		`, user.ID, user.FirstName, user.LastName, user.Username)
		return nil, err
	})
	return err
}

func (r *UserRepository) GetByID(id int64) (*models.User, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		row := db.QueryRow(`
			SELECT id, first_name, last_name, username, nickname, age, bio, interests, photo_file_id, is_blocked, created_at
			FROM users WHERE id = ?
		`, id)
		return scanUser(row)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return result.(*models.User), nil
}

func (r *UserRepository) GetAll() ([]*models.User, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(`
			SELECT id, first_name, last_name, username, nickname, age, bio, interests, photo_file_id, is_blocked, created_at
			FROM users ORDER BY created_at, id
		`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var users []*models.User
		for rows.Next() {
			user, err := scanUser(rows)
			if err != nil {
				return nil, err
			}
			users = append(users, user)
		}
		return users, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.([]*models.User), nil
}

func (r *UserRepository) UpdatePhoto(id int64, fileID string) error {
	return r.updateField(`UPDATE users SET photo_file_id = ? WHERE id = ?`, fileID, id)
}

func (r *UserRepository) UpdateBio(id int64, bio string) error {
	return r.updateField(`UPDATE users SET bio = ? WHERE id = ?`, bio, id)
}

func (r *UserRepository) UpdateNickname(id int64, nickname string) error {
	return r.updateField(`UPDATE users SET nickname = ? WHERE id = ?`, nickname, id)
}

func (r *UserRepository) UpdateAge(id int64, age int) error {
	return r.updateField(`UPDATE users SET age = ? WHERE id = ?`, age, id)
}

// UpdateInterests replaces the whole interest list.
func (r *UserRepository) UpdateInterests(id int64, interests []string) error {
	if interests == nil {
		interests = []string{}
	}
	data, err := json.Marshal(interests)
	if err != nil {
		return err
	}
	return r.updateField(`UPDATE users SET interests = ? WHERE id = ?`, string(data), id)
}

func (r *UserRepository) SetBlocked(id int64, blocked bool) error {
	return r.updateField(`UPDATE users SET is_blocked = ? WHERE id = ?`, blocked, id)
}

func (r *UserRepository) IsBlocked(id int64) (bool, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var blocked sql.NullBool
		err := db.QueryRow(`SELECT is_blocked FROM users WHERE id = ?`, id).Scan(&blocked)
		return blocked.Bool, err
	})
	if err != nil {
		return false, err
	}
	return result.(bool), nil
}

func (r *UserRepository) Count() (int, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var count int
		err := db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count)
		return count, err
	})
	if err != nil {
		return 0, err
	}
	return result.(int), nil
}

func (r *UserRepository) updateField(query string, value interface{}, id int64) error {
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		res, err := db.Exec(query, value, id)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, sql.ErrNoRows
		}
		return nil, nil
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var firstName, lastName, username, nickname, bio, interests, photo sql.NullString
	var age sql.NullInt64
	var blocked sql.NullBool
	err := row.Scan(&user.ID, &firstName, &lastName, &username, &nickname, &age, &bio, &interests, &photo, &blocked, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if interests.String != "" {
		if err := json.Unmarshal([]byte(interests.String), &user.Interests); err != nil {
			return nil, fmt.Errorf("decode interests of user %d: %w", user.ID, err)
		}
	}
	user.Nickname = nickname.String
	user.Age = int(age.Int64)
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.Username = username.String
	user.Bio = bio.String
	user.PhotoFileID = photo.String
	user.IsBlocked = blocked.Bool
	return &user, nil
}
