package curation

import (
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/ingest/bilibili"
)

// Upstream injects promoted fan-card posts into topic feeds. Posts
// carrying this text are advertising, not fan content.
const promoFanCardText = "解锁专属粉丝卡片，使用专属粉丝装扮"

// Videos shorter than this are almost always clipped teasers.
const minVideoDuration = 10

// NormalizeVideos maps a tag feed page to candidates, dropping reposts
// and too-short clips.
func NormalizeVideos(videos []bilibili.VideoInfo) []FeedItem {
	items := make([]FeedItem, 0, len(videos))

	for i := range videos {
		video := &videos[i]
		if video.IsRepost() || video.Duration < minVideoDuration {
			continue
		}

		items = append(items, FeedItem{
			ID:        video.BVID,
			Kind:      KindVideo,
			Author:    video.Owner.Name,
			CreatedAt: video.PublishedAt(),
			Video:     video,
		})
	}

	return items
}

// NormalizeDynamics maps a topic feed page to candidates. Only picture
// posts survive; promoted posts and cards whose payload fails to parse
// are dropped, the latter with a warning.
func NormalizeDynamics(dynamics []bilibili.Dynamic, logger *zerolog.Logger) []FeedItem {
	items := make([]FeedItem, 0, len(dynamics))

	for i := range dynamics {
		dynamic := &dynamics[i]
		if dynamic.Desc.Type != bilibili.DynamicTypePicture {
			continue
		}

		card, err := bilibili.ParsePictureCard(dynamic.Card)
		if err != nil {
			logger.Warn().Err(err).
				Int64("dynamic_id", dynamic.Desc.DynamicID).
				Msg("unparseable picture card, skipping")

			continue
		}

		if strings.Contains(card.Description, promoFanCardText) {
			continue
		}

		items = append(items, FeedItem{
			ID:        strconv.FormatInt(dynamic.Desc.DynamicID, 10),
			Kind:      KindDynamic,
			Author:    dynamic.Desc.User.Info.Name,
			CreatedAt: dynamic.Desc.PublishedAt(),
			Dynamic:   &dynamic.Desc,
			Picture:   card,
		})
	}

	return items
}
