package holidays

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// Result counts what an import did.
type Result struct {
	Created int
	Updated int
	Skipped []Skipped
}

// Importer upserts feed entries into a holiday store.
type Importer struct {
	feed  Feed
	store leave.HolidayStore
	log   zerolog.Logger
}

func NewImporter(feed Feed, store leave.HolidayStore, log zerolog.Logger) *Importer {
	return &Importer{feed: feed, store: store, log: log}
}

// Import fetches the feed and upserts every entry by date. An existing
// holiday on the same date is renamed, never duplicated.
func (im *Importer) Import(ctx context.Context) (Result, error) {
	entries, skipped, err := im.feed.Fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	res := Result{Skipped: skipped}
	for _, s := range skipped {
		im.log.Warn().Str("summary", s.Summary).Str("raw", s.Raw).Msg(s.Reason)
	}
	for _, e := range entries {
		created, err := im.store.UpsertHoliday(ctx, generic.Holiday{Date: e.Date, Name: e.Name})
		if err != nil {
			return res, fmt.Errorf("holiday %s: %w", e.Date, err)
		}
		if created {
			res.Created++
		} else {
			res.Updated++
		}
	}

	im.log.Info().
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("skipped", len(res.Skipped)).
		Msg("holiday import finished")
	return res, nil
}
