package pagedriver

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

const (
	itemSelector        = "div.feed-shared-update-v2"
	nameSelector        = ".update-components-actor__title span[aria-hidden='true'], .update-components-actor__name"
	headlineSelector    = ".update-components-actor__description span[aria-hidden='true'], .update-components-actor__description"
	bodySelector        = ".update-components-text, .feed-shared-inline-show-more-text"
	profileLinkSelector = "a.update-components-actor__meta-link, a.update-components-actor__image"
	postedAtSelector    = ".update-components-actor__sub-description span[aria-hidden='true'], .update-components-actor__sub-description"
	degreeSelector      = ".update-components-actor__supplementary-actor-info"
	permalinkSelector   = "a[href*='/feed/update/']"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	degreeRe     = regexp.MustCompile(`\b(1st|2nd|3rd\+?)`)
	activityRe   = regexp.MustCompile(`urn:li:activity:\d+`)
)

// ParseItems extracts feed items from a rendered page. Relative links are
// resolved against baseURL. Items without any recognisable field are skipped.
func ParseItems(html, baseURL string) ([]models.Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}

	base, _ := url.Parse(baseURL)

	var items []models.Item
	doc.Find(itemSelector).Each(func(_ int, s *goquery.Selection) {
		item := models.Item{
			DisplayName:      firstText(s, nameSelector),
			Headline:         firstText(s, headlineSelector),
			BodyText:         firstText(s, bodySelector),
			ProfileURL:       canonicalURL(base, firstAttr(s, profileLinkSelector, "href")),
			PostURL:          postURL(base, s),
			PostedAt:         postedAt(firstText(s, postedAtSelector)),
			ConnectionDegree: degreeRe.FindString(firstText(s, degreeSelector)),
		}
		if item == (models.Item{}) {
			return
		}
		items = append(items, item)
	})

	return items, nil
}

func firstText(s *goquery.Selection, selector string) string {
	return cleanText(s.Find(selector).First().Text())
}

func firstAttr(s *goquery.Selection, selector, attr string) string {
	value, _ := s.Find(selector).First().Attr(attr)
	return strings.TrimSpace(value)
}

func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// postURL prefers the activity URN carried by the item or its wrapper, then a permalink anchor
func postURL(base *url.URL, s *goquery.Selection) string {
	for _, sel := range []*goquery.Selection{s, s.Parent()} {
		if urn, ok := sel.Attr("data-urn"); ok {
			if id := activityRe.FindString(urn); id != "" {
				return "https://www.linkedin.com/feed/update/" + id + "/"
			}
		}
	}
	return canonicalURL(base, firstAttr(s, permalinkSelector, "href"))
}

// postedAt keeps the leading timestamp of "2d • Edited • 🌐"
func postedAt(text string) string {
	if i := strings.IndexAny(text, "•·"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// canonicalURL resolves href against base and drops tracking query parameters
func canonicalURL(base *url.URL, href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
