// Package summary aggregates one local day of moderated items into the
// per-category report the editors consume, plus per-moderator counts.
package summary

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/yuzutea/curator/internal/feishu"
	db "github.com/yuzutea/curator/internal/storage"
)

// PictureBucket is the report bucket for accepted picture posts. Older
// records carry the internal accepted marker instead of this name; both
// fold into the same bucket.
const PictureBucket = "动态"

const dynamicURLPrefix = "https://t.bilibili.com/"

// unknownModeratorName labels marks by users missing from the tenant
// directory, usually ones removed after marking.
const unknownModeratorName = "？？？"

// Store is the read side the aggregator needs.
type Store interface {
	CategorizedBetween(ctx context.Context, start, end time.Time) ([]db.Item, error)
	MarkCountsBetween(ctx context.Context, start, end time.Time) (map[string]int, error)
}

// Directory lists the chat platform's tenant users.
type Directory interface {
	ListUsers(ctx context.Context) ([]feishu.User, error)
}

type Service struct {
	store Store
	users Directory
	loc   *time.Location
}

func NewService(store Store, users Directory, loc *time.Location) *Service {
	return &Service{store: store, users: users, loc: loc}
}

// Report is one day's accepted items grouped by category. Picture posts
// appear as their post URLs; every other category lists raw ids in
// publish order.
type Report struct {
	Date       string              `json:"date"`
	Categories map[string][]string `json:"categories"`
}

// DayWindow returns the [start, end) bounds of the local day containing t.
func (s *Service) DayWindow(t time.Time) (time.Time, time.Time) {
	local := t.In(s.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	return start, start.AddDate(0, 0, 1)
}

// Daily builds the report for the local day containing t.
func (s *Service) Daily(ctx context.Context, t time.Time) (*Report, error) {
	start, end := s.DayWindow(t)

	items, err := s.store.CategorizedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load categorized items: %w", err)
	}

	report := &Report{
		Date:       start.Format("2006-01-02"),
		Categories: make(map[string][]string),
	}

	for i := range items {
		bucket, entry := bucketEntry(&items[i])
		report.Categories[bucket] = append(report.Categories[bucket], entry)
	}

	return report, nil
}

// KPIEntry is one moderator's mark count, the id resolved to a display
// name through the tenant directory.
type KPIEntry struct {
	Name  string `json:"name"`
	Times int    `json:"times"`
}

// KPI returns per-moderator mark counts for the local day containing t.
func (s *Service) KPI(ctx context.Context, t time.Time) ([]KPIEntry, error) {
	start, end := s.DayWindow(t)

	counts, err := s.store.MarkCountsBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("load mark counts: %w", err)
	}

	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tenant users: %w", err)
	}

	names := make(map[string]string, len(users))
	for _, user := range users {
		names[user.UserID] = user.Name
	}

	entries := make([]KPIEntry, 0, len(counts))

	for id, times := range counts {
		name, ok := names[id]
		if !ok {
			name = unknownModeratorName
		}

		entries = append(entries, KPIEntry{Name: name, Times: times})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Times != entries[j].Times {
			return entries[i].Times > entries[j].Times
		}

		return entries[i].Name < entries[j].Name
	})

	return entries, nil
}

func bucketEntry(item *db.Item) (string, string) {
	switch item.Category {
	case db.CategoryDynamicAccepted, PictureBucket:
		return PictureBucket, dynamicURLPrefix + item.ID
	default:
		return item.Category, item.ID
	}
}
