package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ErrGroupNotFound is returned when no group record exists for a name.
var ErrGroupNotFound = errors.New("group not found")

// Group maps a dated logical channel name to a platform chat id.
// Rows are immutable once inserted.
type Group struct {
	Name   string
	ChatID string
}

func (db *DB) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	var group Group

	err := db.Pool.QueryRow(ctx, `
		SELECT name, chat_id
		FROM groups
		WHERE name = $1
	`, name).Scan(&group.Name, &group.ChatID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGroupNotFound
		}

		return nil, fmt.Errorf("get group by name: %w", err)
	}

	return &group, nil
}

func (db *DB) InsertGroup(ctx context.Context, name, chatID string) (*Group, error) {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO groups (name, chat_id)
		VALUES ($1, $2)
	`, name, chatID)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}

	return &Group{Name: name, ChatID: chatID}, nil
}
