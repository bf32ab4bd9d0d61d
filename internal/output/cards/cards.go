// Package cards renders moderator review cards. Every item becomes a
// three-block body: a content block with title/author/stats and a cover
// image, an action block carrying the item id in its payload, and a
// footer note with the publish time. Batches merge bodies with a
// horizontal rule between items.
package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/yuzutea/curator/internal/ingest/bilibili"
	"github.com/yuzutea/curator/internal/platform/observability"
)

const (
	timeLayout = "2006-01-02 15:04:05"

	// Action payload keys. The callback handler resolves items from
	// these, so they are part of the webhook contract.
	ValueKeyType      = "type"
	ValueKeyBVID      = "bvid"
	ValueKeyDynamicID = "dynamic_id"
	ValueTypeVideo    = "video"
	ValueTypeDynamic  = "dynamic"
)

// ImageUploader pushes an image at a URL to the chat platform and
// returns its image key.
type ImageUploader interface {
	UploadImageURL(ctx context.Context, url string) (string, error)
}

// Renderer builds card bodies. Image uploads that fail fall back to a
// fixed placeholder key instead of failing the batch.
type Renderer struct {
	uploader   ImageUploader
	fallback   string
	categories []string
	loc        *time.Location
	logger     *zerolog.Logger
}

func NewRenderer(uploader ImageUploader, fallbackImageKey string, videoCategories []string, loc *time.Location, logger *zerolog.Logger) *Renderer {
	return &Renderer{
		uploader:   uploader,
		fallback:   fallbackImageKey,
		categories: videoCategories,
		loc:        loc,
		logger:     logger,
	}
}

func (r *Renderer) imageKey(ctx context.Context, url string) string {
	key, err := r.uploader.UploadImageURL(ctx, url)
	if err != nil {
		r.logger.Warn().Err(err).Str("url", url).Msg("image upload failed, using fallback key")
		observability.ImageUploadFallbacks.Inc()

		return r.fallback
	}

	return key
}

// RenderVideo builds the three-block body for a video item.
func (r *Renderer) RenderVideo(ctx context.Context, info *bilibili.VideoInfo) (Body, error) {
	url := "https://www.bilibili.com/video/" + info.BVID

	intro := fmt.Sprintf(
		"[▷%s](%s)\n%s UP：%s\n播放 %d  评论 %d  弹幕 %d  长度 %d:%02d",
		EscapeMarkdown(info.Title), url,
		info.BVID, info.Owner.Name,
		info.Stat.View, info.Stat.Reply, info.Stat.Danmaku,
		info.Duration/60, info.Duration%60,
	)

	content, err := marshalBlock(contentBlock{
		Tag:  "div",
		Text: larkMD(intro),
		Extra: &imageExtra{
			Tag:    "img",
			ImgKey: r.imageKey(ctx, info.CoverURL),
			Alt:    plainText("视频封面"),
		},
	})
	if err != nil {
		return nil, err
	}

	options := make([]selectOption, 0, len(r.categories))
	for _, category := range r.categories {
		options = append(options, selectOption{Text: plainText(category), Value: category})
	}

	action, err := marshalBlock(actionBlock{
		Tag: "action",
		Actions: []any{selectAction{
			Tag:         "select_static",
			Placeholder: plainText("选择分类"),
			Value: map[string]string{
				ValueKeyType: ValueTypeVideo,
				ValueKeyBVID: info.BVID,
			},
			Options: options,
		}},
	})
	if err != nil {
		return nil, err
	}

	footer, err := r.footer(info.PublishedAt())
	if err != nil {
		return nil, err
	}

	return Body{content, action, footer}, nil
}

// RenderDynamic builds the three-block body for a picture post. The
// representative image is the first picture's 512 px thumbnail.
func (r *Renderer) RenderDynamic(ctx context.Context, dynamic *bilibili.DynamicDesc, card *bilibili.PictureCard) (Body, error) {
	id := strconv.FormatInt(dynamic.DynamicID, 10)

	intro := fmt.Sprintf(
		"[%s (%d 图)](https://t.bilibili.com/%s)\n%s",
		dynamic.User.Info.Name, len(card.Pictures), id,
		EscapeMarkdown(card.Description),
	)

	imgKey := r.fallback
	if len(card.Pictures) > 0 {
		imgKey = r.imageKey(ctx, thumbnailURL(card.Pictures[0].Src))
	}

	content, err := marshalBlock(contentBlock{
		Tag:  "div",
		Text: larkMD(intro),
		Extra: &imageExtra{
			Tag:    "img",
			ImgKey: imgKey,
			Alt:    plainText("第一张图"),
		},
	})
	if err != nil {
		return nil, err
	}

	action, err := marshalBlock(actionBlock{
		Tag: "action",
		Actions: []any{buttonAction{
			Tag:  "button",
			Text: plainText("选入今日二创"),
			Type: "default",
			Value: map[string]string{
				ValueKeyType:      ValueTypeDynamic,
				ValueKeyDynamicID: id,
			},
		}},
	})
	if err != nil {
		return nil, err
	}

	footer, err := r.footer(dynamic.PublishedAt())
	if err != nil {
		return nil, err
	}

	return Body{content, action, footer}, nil
}

func (r *Renderer) footer(publishedAt time.Time) (json.RawMessage, error) {
	return marshalBlock(noteBlock{
		Tag:      "note",
		Elements: []textElement{plainText("发布于 " + publishedAt.In(r.loc).Format(timeLayout))},
	})
}

func thumbnailURL(src string) string {
	const suffix = ".@512w.jpg"
	if len(src) >= len(suffix) && src[len(src)-len(suffix):] == suffix {
		return src
	}

	return src + suffix
}

// Accepted rewrites a body's action block with a status annotation. The
// content and footer blocks are kept as rendered at send time. Bodies
// with an unexpected block count are returned unchanged.
func Accepted(body Body, annotation string) Body {
	if len(body) != 3 {
		return body
	}

	status, err := marshalBlock(markdownBlock{Tag: "markdown", Content: annotation})
	if err != nil {
		return body
	}

	return Body{body[0], status, body[2]}
}

// AcceptedVideo annotates a video body with the chosen category.
func AcceptedVideo(body Body, category string) Body {
	return Accepted(body, "✔️ 已接受，分类："+category)
}

// AcceptedDynamic annotates a picture post body.
func AcceptedDynamic(body Body) Body {
	return Accepted(body, "✔️ 已接受")
}

// MergeBodies concatenates bodies with a separator rule between items.
func MergeBodies(bodies []Body) (Body, error) {
	var merged Body

	for i, body := range bodies {
		if i != 0 {
			hr, err := marshalBlock(hrBlock{Tag: "hr"})
			if err != nil {
				return nil, err
			}

			merged = append(merged, hr)
		}

		merged = append(merged, body...)
	}

	return merged, nil
}

// WrapCard wraps merged blocks into a sendable card envelope.
func WrapCard(body Body) (json.RawMessage, error) {
	card, err := json.Marshal(map[string]any{
		"config":        map[string]any{"wide_screen_mode": true},
		"i18n_elements": map[string]any{"zh_cn": body},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal card: %w", err)
	}

	return card, nil
}

// DecodeBody parses a persisted card body.
func DecodeBody(cardJSON string) (Body, error) {
	var body Body
	if err := json.Unmarshal([]byte(cardJSON), &body); err != nil {
		return nil, fmt.Errorf("decode card body: %w", err)
	}

	return body, nil
}

// EncodeBody serializes a body for persistence.
func EncodeBody(body Body) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encode card body: %w", err)
	}

	return string(raw), nil
}
