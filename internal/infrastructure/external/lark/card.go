package lark

// Interactive message card, see the Lark card JSON schema

type card struct {
	Config   cardConfig    `json:"config"`
	Header   cardHeader    `json:"header"`
	Elements []cardElement `json:"elements"`
}

type cardConfig struct {
	WideScreenMode bool `json:"wide_screen_mode"`
}

type cardHeader struct {
	Title    cardText `json:"title"`
	Template string   `json:"template"`
}

type cardText struct {
	Tag     string `json:"tag"`
	Content string `json:"content"`
}

type cardElement struct {
	Tag     string       `json:"tag"`
	Text    *cardText    `json:"text,omitempty"`
	Actions []cardAction `json:"actions,omitempty"`
}

type cardAction struct {
	Tag  string   `json:"tag"`
	Text cardText `json:"text"`
	URL  string   `json:"url"`
	Type string   `json:"type"`
}

func newCard(title, template, markdown, link string) *card {
	c := &card{
		Config: cardConfig{WideScreenMode: true},
		Header: cardHeader{
			Title:    cardText{Tag: "plain_text", Content: title},
			Template: template,
		},
		Elements: []cardElement{{
			Tag:  "div",
			Text: &cardText{Tag: "lark_md", Content: markdown},
		}},
	}
	if link != "" {
		c.Elements = append(c.Elements, cardElement{
			Tag: "action",
			Actions: []cardAction{{
				Tag:  "button",
				Text: cardText{Tag: "plain_text", Content: "Open claim"},
				URL:  link,
				Type: "primary",
			}},
		})
	}
	return c
}
