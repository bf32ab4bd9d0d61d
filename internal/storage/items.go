package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// ErrItemNotFound is returned when an item record does not exist.
var ErrItemNotFound = errors.New("item not found")

// ItemStatus is the moderation state derived from the category column.
type ItemStatus string

const (
	// StatusPending means no moderator has acted on the item yet.
	StatusPending ItemStatus = "pending"
	// StatusCategorized means a category has been assigned.
	StatusCategorized ItemStatus = "categorized"
)

// CategoryDynamicAccepted marks an accepted picture post. Picture posts
// have no category choice, so acceptance stores this fixed value; the
// summary folds it into the picture bucket.
const CategoryDynamicAccepted = "ok"

// Item is one notified content unit. A row exists if and only if the item
// has been delivered to a review group, so existence doubles as the
// dedup signal across poll cycles.
type Item struct {
	ID        string
	CardJSON  string
	MessageID string
	CreatedAt time.Time
	Category  string
	MarkTime  time.Time
	MarkedBy  string
	Author    string
}

// Status reports the moderation state. The category column is nullable in
// the schema; an empty Category maps to pending.
func (i *Item) Status() ItemStatus {
	if i.Category == "" {
		return StatusPending
	}

	return StatusCategorized
}

func (db *DB) InsertItem(ctx context.Context, item *Item) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO items (id, card_json, message_id, created_at, category, author)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, item.CardJSON, item.MessageID, item.CreatedAt, toText(item.Category), item.Author)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}

	return nil
}

func (db *DB) ItemExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)
	`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("item exists: %w", err)
	}

	return exists, nil
}

func (db *DB) GetItem(ctx context.Context, id string) (*Item, error) {
	row := db.Pool.QueryRow(ctx, `
		SELECT id, card_json, message_id, created_at, category, mark_time, marked_by, author
		FROM items
		WHERE id = $1
	`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrItemNotFound
		}

		return nil, fmt.Errorf("get item: %w", err)
	}

	return item, nil
}

// SetItemCategory assigns a category and records who marked it and when.
// Re-applying the same category is a plain re-write, which keeps moderator
// double-taps idempotent.
func (db *DB) SetItemCategory(ctx context.Context, id, category, markedBy string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE items
		SET category = $2, mark_time = now(), marked_by = $3
		WHERE id = $1
	`, id, category, toText(markedBy))
	if err != nil {
		return fmt.Errorf("set item category: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (db *DB) ClearItemCategory(ctx context.Context, id string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE items
		SET category = NULL, mark_time = NULL, marked_by = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("clear item category: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (db *DB) SetItemCardJSON(ctx context.Context, id, cardJSON string) error {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE items
		SET card_json = $2
		WHERE id = $1
	`, id, cardJSON)
	if err != nil {
		return fmt.Errorf("set item card json: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}

	return nil
}

// CardsByMessageID returns the individual card bodies of every item
// delivered in the same batched message, oldest first. The callback
// handler merges these to rebuild the full message view.
func (db *DB) CardsByMessageID(ctx context.Context, messageID string) ([]string, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT card_json
		FROM items
		WHERE message_id = $1
		ORDER BY created_at ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("cards by message id: %w", err)
	}
	defer rows.Close()

	var cards []string

	for rows.Next() {
		var card string
		if err := rows.Scan(&card); err != nil {
			return nil, fmt.Errorf("scan card json: %w", err)
		}

		cards = append(cards, card)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cards by message id rows: %w", err)
	}

	return cards, nil
}

// CategorizedBetween returns categorized items whose publish time falls in
// [start, end), ordered ascending by publish time.
func (db *DB) CategorizedBetween(ctx context.Context, start, end time.Time) ([]Item, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, card_json, message_id, created_at, category, mark_time, marked_by, author
		FROM items
		WHERE category IS NOT NULL
		  AND created_at >= $1 AND created_at < $2
		ORDER BY created_at ASC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("categorized between: %w", err)
	}
	defer rows.Close()

	var items []Item

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}

		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("categorized between rows: %w", err)
	}

	return items, nil
}

// MarkCountsBetween returns, per moderator, how many items they marked in
// [start, end). Feeds the KPI endpoint.
func (db *DB) MarkCountsBetween(ctx context.Context, start, end time.Time) (map[string]int, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT marked_by, COUNT(*)
		FROM items
		WHERE marked_by IS NOT NULL
		  AND mark_time >= $1 AND mark_time < $2
		GROUP BY marked_by
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("mark counts between: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)

	for rows.Next() {
		var (
			markedBy string
			count    int
		)

		if err := rows.Scan(&markedBy, &count); err != nil {
			return nil, fmt.Errorf("scan mark count: %w", err)
		}

		counts[markedBy] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mark counts rows: %w", err)
	}

	return counts, nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var (
		item     Item
		category pgtype.Text
		markTime pgtype.Timestamptz
		markedBy pgtype.Text
		created  pgtype.Timestamptz
	)

	if err := row.Scan(&item.ID, &item.CardJSON, &item.MessageID, &created, &category, &markTime, &markedBy, &item.Author); err != nil {
		return nil, err
	}

	item.CreatedAt = fromTimestamptz(created)
	item.Category = fromText(category)
	item.MarkTime = fromTimestamptz(markTime)
	item.MarkedBy = fromText(markedBy)

	return &item, nil
}
