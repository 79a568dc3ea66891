package render

// Group is the visual returned by the draw callback.
type Group struct {
	Type     string    `json:"type"`
	Children []Element `json:"children"`
	Cursor   string    `json:"cursor,omitempty"`
}

// Empty reports whether the group draws nothing.
func (g Group) Empty() bool { return len(g.Children) == 0 }

func emptyGroup() Group {
	return Group{Type: "group", Children: []Element{}}
}

// Element is a single shape inside a group.
type Element struct {
	Type  string `json:"type"`
	Shape *Shape `json:"shape,omitempty"`
	Style *Style `json:"style,omitempty"`
}

type Shape struct {
	Points [][2]float64 `json:"points"`
}

type Style struct {
	Stroke    string  `json:"stroke,omitempty"`
	Fill      string  `json:"fill,omitempty"`
	LineWidth float64 `json:"lineWidth,omitempty"`
	Opacity   float64 `json:"opacity,omitempty"`

	Text                string  `json:"text,omitempty"`
	Font                string  `json:"textFont,omitempty"`
	TextFill            string  `json:"textFill,omitempty"`
	TextAlign           string  `json:"textAlign,omitempty"`
	TextVerticalAlign   string  `json:"textVerticalAlign,omitempty"`
	X                   float64 `json:"x,omitempty"`
	Y                   float64 `json:"y,omitempty"`
	TextBackgroundColor string  `json:"textBackgroundColor,omitempty"`
	TextPadding         []int   `json:"textPadding,omitempty"`
}
