// Package persist is the local persistence adapter: a small key-value
// store over SQLite holding the conversation list, the active
// conversation id, and the user preferences.
package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	_ "modernc.org/sqlite"

	"github.com/emberchat/emberchat/internal/model"
)

// Persistence keys. Preferences are independent scalar keys so each
// one defaults on its own when absent.
const (
	keyConversations  = "conversations"
	keyActiveID       = "active_conversation"
	keyBaseTheme      = "pref.base_theme"
	keyAccentTheme    = "pref.accent_theme"
	keyCustomStyle    = "pref.custom_style"
	keyTargetLanguage = "pref.target_language"
	keyThinkingBudget = "pref.thinking_budget"
	keySelectedModel  = "pref.selected_model"
)

// Store is the SQLite-backed key-value adapter.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database and initializes the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	// WAL keeps readers unblocked during the flush after each turn.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection avoids lock churn.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

// LoadConversations returns the persisted conversation list in order.
// A missing key yields an empty list.
func (s *Store) LoadConversations(ctx context.Context) ([]*model.Conversation, error) {
	raw, ok, err := s.get(ctx, keyConversations)
	if err != nil || !ok {
		return nil, err
	}
	var convs []*model.Conversation
	if err := json.Unmarshal([]byte(raw), &convs); err != nil {
		return nil, fmt.Errorf("corrupt conversation list: %w", err)
	}
	return convs, nil
}

// SaveConversations persists the full conversation list.
func (s *Store) SaveConversations(ctx context.Context, convs []*model.Conversation) error {
	raw, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("failed to encode conversations: %w", err)
	}
	return s.set(ctx, keyConversations, string(raw))
}

// LoadActiveID returns the persisted active conversation id, or "".
func (s *Store) LoadActiveID(ctx context.Context) (string, error) {
	id, _, err := s.get(ctx, keyActiveID)
	return id, err
}

// SaveActiveID persists the active conversation id.
func (s *Store) SaveActiveID(ctx context.Context, id string) error {
	return s.set(ctx, keyActiveID, id)
}

// LoadPreferences reads the preference keys, filling defaults for any
// that are absent.
func (s *Store) LoadPreferences(ctx context.Context, defaultModel string) (model.Preferences, error) {
	prefs := model.DefaultPreferences(defaultModel)

	read := func(key string, dst *string) error {
		v, ok, err := s.get(ctx, key)
		if err != nil {
			return err
		}
		if ok {
			*dst = v
		}
		return nil
	}

	if err := read(keyBaseTheme, &prefs.BaseTheme); err != nil {
		return prefs, err
	}
	if err := read(keyAccentTheme, &prefs.AccentTheme); err != nil {
		return prefs, err
	}
	if err := read(keyCustomStyle, &prefs.CustomStyleText); err != nil {
		return prefs, err
	}
	if err := read(keyTargetLanguage, &prefs.TargetLanguage); err != nil {
		return prefs, err
	}
	if err := read(keySelectedModel, &prefs.SelectedModel); err != nil {
		return prefs, err
	}

	if v, ok, err := s.get(ctx, keyThinkingBudget); err != nil {
		return prefs, err
	} else if ok {
		if n, err := strconv.Atoi(v); err == nil {
			prefs.ThinkingBudget = n
		}
	}

	return prefs, nil
}

// SavePreferences writes every preference key.
func (s *Store) SavePreferences(ctx context.Context, prefs model.Preferences) error {
	pairs := []struct{ key, value string }{
		{keyBaseTheme, prefs.BaseTheme},
		{keyAccentTheme, prefs.AccentTheme},
		{keyCustomStyle, prefs.CustomStyleText},
		{keyTargetLanguage, prefs.TargetLanguage},
		{keyThinkingBudget, strconv.Itoa(prefs.ThinkingBudget)},
		{keySelectedModel, prefs.SelectedModel},
	}
	for _, p := range pairs {
		if err := s.set(ctx, p.key, p.value); err != nil {
			return err
		}
	}
	return nil
}
