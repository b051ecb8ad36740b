package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ad/go-telegram-puzzle/internal/models"
)

// MaxSettingLength is the Telegram limit for a message text.
const MaxSettingLength = 4096

// SettingsRepository stores admin overrides of the bot texts. A key without
// a row falls back to models.DefaultSettings.
type SettingsRepository struct {
	queue *DBQueue
}

func NewSettingsRepository(queue *DBQueue) *SettingsRepository {
	return &SettingsRepository{queue: queue}
}

func (r *SettingsRepository) Get(key models.SettingKey) (string, error) {
	if !models.IsSettingKey(key) {
		return "", fmt.Errorf("%w: unknown setting %q", models.ErrInvalidArgument, key)
	}
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var value string
		err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, string(key)).Scan(&value)
		return value, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		defaults := models.DefaultSettings()
		return defaults.Value(key), nil
	}
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (r *SettingsRepository) Set(key models.SettingKey, value string) error {
	value = strings.TrimSpace(value)
	switch {
	case !models.IsSettingKey(key):
		return fmt.Errorf("%w: unknown setting %q", models.ErrInvalidArgument, key)
	case value == "":
		return fmt.Errorf("%w: the text must not be empty", models.ErrInvalidArgument)
	case utf8.RuneCountInString(value) > MaxSettingLength:
		return fmt.Errorf("%w: the text is longer than %d characters", models.ErrInvalidArgument, MaxSettingLength)
	}

	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		_, err := db.Exec(`
			INSERT INTO settings (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, string(key), value)
		return nil, err
	})
	return err
}

// Reset drops the override so the default text applies again.
func (r *SettingsRepository) Reset(key models.SettingKey) error {
	if !models.IsSettingKey(key) {
		return fmt.Errorf("%w: unknown setting %q", models.ErrInvalidArgument, key)
	}
	_, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		return db.Exec(`DELETE FROM settings WHERE key = ?`, string(key))
	})
	return err
}

// GetAll overlays stored overrides on the defaults. Rows with unknown keys
// are ignored.
func (r *SettingsRepository) GetAll() (*models.Settings, error) {
	result, err := r.queue.Execute(func(db *sql.DB) (interface{}, error) {
		rows, err := db.Query(`SELECT key, value FROM settings`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		settings := models.DefaultSettings()
		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				return nil, err
			}
			settings.Apply(models.SettingKey(key), value)
		}
		return &settings, rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.Settings), nil
}
