package auth

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// LoginFormLocator finds the login form of an HTML page.
type LoginFormLocator interface {
	// Locate returns the login form of body with its action resolved
	// against pageURL, or ErrNoLoginForm.
	Locate(body []byte, pageURL string) (*model.Form, error)
}

// HeuristicLocator picks the first form that contains a password input.
// Forms without a method attribute are submitted with POST.
type HeuristicLocator struct{}

var _ LoginFormLocator = HeuristicLocator{}

// Locate implements LoginFormLocator.
func (HeuristicLocator) Locate(body []byte, pageURL string) (*model.Form, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse login page: %w", err)
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	var form *model.Form
	doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		candidate := parseForm(s, base)
		if !candidate.HasPasswordField() {
			return true
		}
		form = candidate
		return false
	})
	if form == nil {
		return nil, ErrNoLoginForm
	}
	return form, nil
}

func parseForm(s *goquery.Selection, base *url.URL) *model.Form {
	form := &model.Form{
		Action: base.String(),
		Method: "POST",
		ID:     attr(s, "id"),
		Name:   attr(s, "name"),
	}

	if action := attr(s, "action"); action != "" {
		if ref, err := url.Parse(action); err == nil {
			form.Action = base.ResolveReference(ref).String()
		}
	}
	if method := attr(s, "method"); method != "" {
		form.Method = strings.ToUpper(method)
	}

	s.Find("input").Each(func(_ int, in *goquery.Selection) {
		inputType := strings.ToLower(attr(in, "type"))
		if inputType == "" {
			inputType = "text"
		}
		_, checked := in.Attr("checked")
		form.Inputs = append(form.Inputs, model.FormInput{
			Type:    inputType,
			Name:    attr(in, "name"),
			ID:      attr(in, "id"),
			Value:   attr(in, "value"),
			Checked: checked,
		})
	})
	return form
}

func attr(s *goquery.Selection, name string) string {
	v, _ := s.Attr(name)
	return strings.TrimSpace(v)
}

// usernameKeywords mark a text or email input as the username field when
// they appear in its name or id.
var usernameKeywords = []string{"user", "email", "login", "account"}

// Fallback field names tried when no input matched by type.
var (
	fallbackUsernameFields = []string{"username", "user", "email", "login", "userid", "user_email", "account", "un", "uid"}
	fallbackPasswordFields = []string{"password", "pass", "pwd", "passwd", "pw", "user_password"}
)

// FillForm returns the values submitted for form: the username and password
// in their detected fields plus hidden inputs, checked checkboxes and named
// submit buttons with their default values.
func FillForm(form *model.Form, username, password string) url.Values {
	values := url.Values{}
	var usernameSet, passwordSet bool

	for _, in := range form.Inputs {
		if in.Name == "" {
			continue
		}
		switch {
		case (in.Type == "text" || in.Type == "email") &&
			(containsAny(in.Name, usernameKeywords) || containsAny(in.ID, usernameKeywords)):
			values.Set(in.Name, username)
			usernameSet = true
		case in.Type == "password":
			values.Set(in.Name, password)
			passwordSet = true
		case in.Type == "hidden" || in.Type == "token":
			values.Set(in.Name, in.Value)
		case in.Type == "checkbox" && in.Checked:
			value := in.Value
			if value == "" {
				value = "on"
			}
			values.Set(in.Name, value)
		case in.Type == "submit" && in.Value != "":
			values.Set(in.Name, in.Value)
		}
	}

	if !usernameSet {
		if name, ok := findField(form, fallbackUsernameFields); ok {
			values.Set(name, username)
		}
	}
	if !passwordSet {
		if name, ok := findField(form, fallbackPasswordFields); ok {
			values.Set(name, password)
		}
	}
	return values
}

// findField returns the submitted name of the first input whose name or id
// is one of candidates, tried in order.
func findField(form *model.Form, candidates []string) (string, bool) {
	for _, candidate := range candidates {
		for _, in := range form.Inputs {
			if in.Name == candidate {
				return in.Name, true
			}
			if in.ID == candidate {
				if in.Name != "" {
					return in.Name, true
				}
				return candidate, true
			}
		}
	}
	return "", false
}

func containsAny(s string, keywords []string) bool {
	s = strings.ToLower(s)
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
