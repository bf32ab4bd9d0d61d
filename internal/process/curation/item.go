// Package curation turns raw feed pages into the batches that reach a
// review group: normalize, drop noise, merge duplicates across topics,
// filter out everything already notified and cap to the batch size.
package curation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yuzutea/curator/internal/ingest/bilibili"
)

// Kind labels the two content shapes flowing through the pipeline.
type Kind string

const (
	KindVideo   Kind = "video"
	KindDynamic Kind = "dynamic"
)

// FeedItem is one normalized candidate. Exactly one of Video or
// Dynamic/Picture is set, matching Kind.
type FeedItem struct {
	ID        string
	Kind      Kind
	Author    string
	CreatedAt time.Time

	Video   *bilibili.VideoInfo
	Dynamic *bilibili.DynamicDesc
	Picture *bilibili.PictureCard
}

// MergeByID collapses duplicates collected across topic feeds. When the
// same id appears more than once the later occurrence wins. The result
// is ordered by publish time ascending; the relative order of equal
// timestamps is unspecified.
func MergeByID(items []FeedItem) []FeedItem {
	byID := make(map[string]FeedItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	merged := make([]FeedItem, 0, len(byID))
	for _, item := range byID {
		merged = append(merged, item)
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].CreatedAt.Before(merged[j].CreatedAt)
	})

	return merged
}

// ExistenceStore answers whether an item has already been notified.
type ExistenceStore interface {
	ItemExists(ctx context.Context, id string) (bool, error)
}

// FilterUnsent drops items that already have a persisted record. Order
// is preserved.
func FilterUnsent(ctx context.Context, store ExistenceStore, items []FeedItem) ([]FeedItem, error) {
	unsent := make([]FeedItem, 0, len(items))

	for _, item := range items {
		exists, err := store.ItemExists(ctx, item.ID)
		if err != nil {
			return nil, fmt.Errorf("check item %s: %w", item.ID, err)
		}

		if !exists {
			unsent = append(unsent, item)
		}
	}

	return unsent, nil
}

// Chunk partitions items into batches of at most size, preserving order.
func Chunk(items []FeedItem, size int) [][]FeedItem {
	if len(items) == 0 {
		return nil
	}

	if size <= 0 {
		return [][]FeedItem{items}
	}

	batches := make([][]FeedItem, 0, (len(items)+size-1)/size)

	for len(items) > size {
		batches = append(batches, items[:size])
		items = items[size:]
	}

	return append(batches, items)
}
