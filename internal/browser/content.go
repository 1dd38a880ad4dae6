package browser

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// Control is a form control found in the page markup
type Control struct {
	Name     string   `json:"name"`
	Tag      string   `json:"tag"`
	Type     string   `json:"type,omitempty"`
	Label    string   `json:"label,omitempty"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

// Content is a page reduced to what inference needs to see
type Content struct {
	Title    string
	Platform Platform
	Markdown string
	Controls []Control
}

// Reduce strips noise from rendered HTML, inventories form controls and converts the main
// content to markdown.
func Reduce(html, pageURL string) (*Content, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	platform := DetectPlatform(pageURL)
	doc.Find(strings.Join(NoiseSelectors(platform), ", ")).Remove()

	content := &Content{
		Title:    strings.TrimSpace(doc.Find("title").First().Text()),
		Platform: platform,
		Controls: inventory(doc),
	}

	main := doc.Find("body")
	for _, selector := range ContentSelectors(platform) {
		if sel := doc.Find(selector); sel.Length() > 0 {
			main = sel.First()
			break
		}
	}
	// Keep the whole body when the chosen container would drop the form.
	if len(content.Controls) > 0 && main.Find("input, select, textarea").Length() == 0 {
		main = doc.Find("body")
	}

	fragment, err := goquery.OuterHtml(main)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}
	md, err := htmltomarkdown.ConvertString(fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	content.Markdown = cleanWhitespace(md)
	return content, nil
}

// Prompt renders the content for an extraction prompt.
func (c *Content) Prompt() string {
	var sb strings.Builder
	if c.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", c.Title)
	}
	if c.Platform != PlatformUnknown {
		fmt.Fprintf(&sb, "Platform: %s\n", c.Platform)
	}
	if len(c.Controls) > 0 {
		sb.WriteString("\nForm controls (name | tag | type | label | required | options):\n")
		for _, ctl := range c.Controls {
			fmt.Fprintf(&sb, "- %s | %s | %s | %s | %t | %s\n",
				ctl.Name, ctl.Tag, ctl.Type, ctl.Label, ctl.Required, strings.Join(ctl.Options, "; "))
		}
	}
	sb.WriteString("\n")
	sb.WriteString(c.Markdown)
	return sb.String()
}

func inventory(doc *goquery.Document) []Control {
	labels := map[string]string{}
	doc.Find("label[for]").Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr("for"); ok {
			labels[id] = squash(s.Text())
		}
	})

	var controls []Control
	seen := map[string]bool{}
	doc.Find("input, select, textarea").Each(func(_ int, s *goquery.Selection) {
		tag := goquery.NodeName(s)
		typ := strings.ToLower(s.AttrOr("type", ""))
		if tag == "input" {
			switch typ {
			case "hidden", "submit", "button", "reset", "image":
				return
			}
			if typ == "" {
				typ = "text"
			}
		} else {
			typ = tag
		}

		id := s.AttrOr("id", "")
		name := s.AttrOr("name", id)
		if name == "" || (seen[name] && typ != "radio") {
			return
		}

		label := labels[id]
		if label == "" {
			label = squash(s.Closest("label").Text())
		}
		if label == "" {
			label = s.AttrOr("aria-label", s.AttrOr("placeholder", ""))
		}

		ctl := Control{Name: name, Tag: tag, Type: typ, Label: label, Required: s.Is("[required]") || s.AttrOr("aria-required", "") == "true"}
		if tag == "select" {
			s.Find("option").Each(func(_ int, o *goquery.Selection) {
				if text := squash(o.Text()); text != "" && o.AttrOr("value", "x") != "" {
					ctl.Options = append(ctl.Options, text)
				}
			})
		}

		if typ == "radio" && seen[name] {
			for i := range controls {
				if controls[i].Name == name {
					controls[i].Options = append(controls[i].Options, radioLabel(s, labels))
				}
			}
			return
		}
		if typ == "radio" {
			ctl.Label = squash(s.Closest("fieldset").Find("legend").First().Text())
			ctl.Options = []string{radioLabel(s, labels)}
		}
		seen[name] = true
		controls = append(controls, ctl)
	})
	return controls
}

func radioLabel(s *goquery.Selection, labels map[string]string) string {
	if l := labels[s.AttrOr("id", "")]; l != "" {
		return l
	}
	if l := squash(s.Closest("label").Text()); l != "" {
		return l
	}
	return s.AttrOr("value", "")
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanWhitespace trims lines and drops runs of blank lines.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(cleaned) > 0 {
				cleaned = append(cleaned, "")
			}
			blank = true
			continue
		}
		blank = false
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
