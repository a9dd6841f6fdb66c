// Package review turns reviewed attempts into chat messages.
package review

import (
	"fmt"
	"net/url"
	"strings"

	"reviewbot/internal/devman"
)

const DefaultBaseURL = "https://dvmn.org"

const (
	negativeTemplate = `У вас проверили работу "%s".
К сожалению, в работе нашлись ошибки.
Посмотреть их можно по ссылке: %s`

	positiveTemplate = `У вас проверили работу "%s".
Преподавателю все понравилось, можно приступать к следующему уроку.
Для этого можно перейти по ссылке: %s`
)

// Formatter renders attempts. It holds no mutable state and is safe for concurrent use.
type Formatter struct {
	base *url.URL
	raw  string
}

// NewFormatter returns a formatter that resolves lesson links against baseURL.
// An empty baseURL means DefaultBaseURL.
func NewFormatter(baseURL string) (*Formatter, error) {
	raw := strings.TrimSpace(baseURL)
	if raw == "" {
		raw = DefaultBaseURL
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("review: invalid base url %q", baseURL)
	}
	return &Formatter{base: u, raw: raw}, nil
}

// Format renders a single attempt as plain text.
func (f *Formatter) Format(a devman.Attempt) string {
	link := f.LessonURL(a.LessonURL)
	if a.IsNegative {
		return fmt.Sprintf(negativeTemplate, a.LessonTitle, link)
	}
	return fmt.Sprintf(positiveTemplate, a.LessonTitle, link)
}

// LessonURL resolves a relative lesson path against the base origin.
func (f *Formatter) LessonURL(rel string) string {
	ref, err := url.Parse(strings.TrimSpace(rel))
	if err != nil {
		return strings.TrimRight(f.raw, "/") + "/" + strings.TrimLeft(rel, "/")
	}
	return f.base.ResolveReference(ref).String()
}
