package bilibili

import (
	"encoding/json"
	"fmt"
	"time"
)

// Dynamic feed card types as reported by desc.type.
const (
	DynamicTypeRepost  = 1
	DynamicTypePicture = 2
	DynamicTypeText    = 4
	DynamicTypeVideo   = 8
	DynamicTypeArticle = 64
)

// VideoInfo is one video entry from a tag feed.
type VideoInfo struct {
	BVID      string     `json:"bvid"`
	Title     string     `json:"title"`
	CoverURL  string     `json:"pic"`
	Owner     Owner      `json:"owner"`
	Stat      VideoStat  `json:"stat"`
	Duration  int64      `json:"duration"`
	PubDate   int64      `json:"pubdate"`
	Copyright int        `json:"copyright"`
}

// PublishedAt is the source publish timestamp.
func (v *VideoInfo) PublishedAt() time.Time {
	return time.Unix(v.PubDate, 0).UTC()
}

// IsRepost reports whether the video is a re-upload rather than original
// content (copyright == 2 upstream).
func (v *VideoInfo) IsRepost() bool {
	return v.Copyright == 2
}

type Owner struct {
	MID  int64  `json:"mid"`
	Name string `json:"name"`
}

type VideoStat struct {
	View    int64 `json:"view"`
	Reply   int64 `json:"reply"`
	Danmaku int64 `json:"danmaku"`
}

// Dynamic is one card from the topic feed. The inner card payload arrives
// as a raw JSON string whose shape depends on desc.type; callers decode it
// with ParsePictureCard once the type is known.
type Dynamic struct {
	Desc DynamicDesc `json:"desc"`
	Card string      `json:"card"`
}

type DynamicDesc struct {
	Type      int         `json:"type"`
	DynamicID int64       `json:"dynamic_id"` //nolint:tagliatelle
	Timestamp int64       `json:"timestamp"`
	View      int64       `json:"view"`
	Repost    int64       `json:"repost"`
	Like      int64       `json:"like"`
	User      UserProfile `json:"user_profile"` //nolint:tagliatelle
}

// PublishedAt is the source publish timestamp.
func (d *DynamicDesc) PublishedAt() time.Time {
	return time.Unix(d.Timestamp, 0).UTC()
}

type UserProfile struct {
	Info UserInfo `json:"info"`
}

type UserInfo struct {
	UID  int64  `json:"uid"`
	Name string `json:"uname"`
	Face string `json:"face"`
}

// PictureCard is the decoded inner payload of a picture dynamic
// (desc.type == DynamicTypePicture).
type PictureCard struct {
	Category    string    `json:"category"`
	Description string    `json:"description"`
	ID          int64     `json:"id"`
	Pictures    []Picture `json:"pictures"`
	UploadTime  int64     `json:"upload_time"` //nolint:tagliatelle
}

type Picture struct {
	Width  int64  `json:"img_width"`  //nolint:tagliatelle
	Height int64  `json:"img_height"` //nolint:tagliatelle
	Src    string `json:"img_src"`    //nolint:tagliatelle
}

// ParsePictureCard decodes the raw inner card of a picture dynamic. The
// payload nests the fields under an "item" key.
func ParsePictureCard(raw string) (*PictureCard, error) {
	var wrapper struct {
		Item PictureCard `json:"item"`
	}

	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return nil, fmt.Errorf("parse picture card: %w", err)
	}

	return &wrapper.Item, nil
}
