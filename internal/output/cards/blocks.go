package cards

import (
	"encoding/json"
	"fmt"
)

// Body is one item's card: an ordered list of renderable blocks. The
// wire shape is Feishu's interactive card element list, kept as raw JSON
// so persisted bodies survive round trips untouched.
type Body []json.RawMessage

// Block building types. Only the shapes the curator renders are modeled.

type textElement struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type imageExtra struct {
	Tag    string      `json:"tag"`
	ImgKey string      `json:"img_key"` //nolint:tagliatelle
	Alt    textElement `json:"alt"`
}

type contentBlock struct {
	Tag   string      `json:"tag"`
	Text  textElement `json:"text"`
	Extra *imageExtra `json:"extra,omitempty"`
}

type actionBlock struct {
	Tag     string `json:"tag"`
	Actions []any  `json:"actions"`
}

type selectOption struct {
	Text  textElement `json:"text"`
	Value string      `json:"value"`
}

type selectAction struct {
	Tag         string            `json:"tag"`
	Placeholder textElement       `json:"placeholder"`
	Value       map[string]string `json:"value"`
	Options     []selectOption    `json:"options"`
}

type buttonAction struct {
	Tag   string            `json:"tag"`
	Text  textElement       `json:"text"`
	Type  string            `json:"type"`
	Value map[string]string `json:"value"`
}

type noteBlock struct {
	Tag      string        `json:"tag"`
	Elements []textElement `json:"elements"`
}

type markdownBlock struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type hrBlock struct {
	Tag string `json:"tag"`
}

func marshalBlock(block any) (json.RawMessage, error) {
	raw, err := json.Marshal(block)
	if err != nil {
		return nil, fmt.Errorf("marshal card block: %w", err)
	}

	return raw, nil
}

func plainText(content string) textElement {
	return textElement{Tag: "plain_text", Content: content}
}

func larkMD(content string) textElement {
	return textElement{Tag: "lark_md", Content: content}
}
