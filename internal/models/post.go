package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Post is the structured form of one API item (question or answer), with
// the HTML body reduced to plain text and outbound links. This is what the
// classifier and spam handler see.
type Post struct {
	Site         string
	ID           int
	QuestionID   int // parent question; equals ID for questions
	IsAnswer     bool
	Title        string
	BodyHTML     string
	BodyText     string
	Links        []string
	OwnerName    string
	OwnerLink    string
	CreationDate time.Time
	Edited       bool
	FetchedAt    time.Time
}

// ParseError marks an item whose body could not be turned into a Post.
// The caller skips the item (and its answers) and moves on.
type ParseError struct {
	Site string
	ID   int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse post %s/%d: %v", e.Site, e.ID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseQuestion builds a Post from a question item. The item must have
// already passed the title/body presence check.
func ParseQuestion(site string, item *APIItem, fetchedAt time.Time) (*Post, error) {
	text, links, err := extractBody(*item.Body)
	if err != nil {
		return nil, &ParseError{Site: site, ID: item.QuestionID, Err: err}
	}
	p := &Post{
		Site:         site,
		ID:           item.QuestionID,
		QuestionID:   item.QuestionID,
		Title:        *item.Title,
		BodyHTML:     *item.Body,
		BodyText:     text,
		Links:        links,
		CreationDate: time.Unix(item.CreationDate, 0).UTC(),
		Edited:       item.Edited(),
		FetchedAt:    fetchedAt,
	}
	if item.Owner != nil {
		p.OwnerName = item.Owner.DisplayName
		p.OwnerLink = item.Owner.Link
	}
	return p, nil
}

// ParseAnswer builds a Post from an answer, carrying its parent question id
// so conflict rescans can re-fetch the whole tree.
func ParseAnswer(site string, parent *Post, ans *APIAnswer, fetchedAt time.Time) (*Post, error) {
	if ans.Body == nil {
		return nil, &ParseError{Site: site, ID: ans.AnswerID, Err: fmt.Errorf("answer has no body")}
	}
	text, links, err := extractBody(*ans.Body)
	if err != nil {
		return nil, &ParseError{Site: site, ID: ans.AnswerID, Err: err}
	}
	p := &Post{
		Site:         site,
		ID:           ans.AnswerID,
		QuestionID:   parent.QuestionID,
		IsAnswer:     true,
		BodyHTML:     *ans.Body,
		BodyText:     text,
		Links:        links,
		CreationDate: time.Unix(ans.CreationDate, 0).UTC(),
		Edited:       ans.Edited(),
		FetchedAt:    fetchedAt,
	}
	if ans.Owner != nil {
		p.OwnerName = ans.Owner.DisplayName
		p.OwnerLink = ans.Owner.Link
	}
	return p, nil
}

// extractBody renders the HTML body as plain text and collects href targets.
func extractBody(body string) (string, []string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", nil, err
	}

	var links []string
	doc.Find("a").Each(func(i int, sel *goquery.Selection) {
		href, exists := sel.Attr("href")
		if exists && href != "" && !strings.HasPrefix(href, "#") {
			links = append(links, href)
		}
	})

	text := strings.TrimSpace(doc.Text())
	return text, links, nil
}
