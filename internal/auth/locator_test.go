package auth

import (
	"errors"
	"testing"

	"github.com/crawlingchimp/crawlingchimp/internal/model"
)

// TestHeuristicLocatorLocate tests login form detection.
func TestHeuristicLocatorLocate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		pageURL    string
		wantAction string
		wantMethod string
		wantInputs int
	}{
		{
			name: "relative action",
			body: `<form action="/session" method="post">
				<input type="text" name="username"><input type="password" name="password">
			</form>`,
			pageURL:    "https://example.com/login",
			wantAction: "https://example.com/session",
			wantMethod: "POST",
			wantInputs: 2,
		},
		{
			name:       "empty action posts to the page",
			body:       `<form><input name="user"><input type="PASSWORD" name="pw"></form>`,
			pageURL:    "https://example.com/signin",
			wantAction: "https://example.com/signin",
			wantMethod: "POST",
			wantInputs: 2,
		},
		{
			name: "skips search form",
			body: `<form action="/search" method="get"><input name="q"></form>
				<form id="login" action="auth" method="get"><input type="email" name="email"><input type="password" name="pass"></form>`,
			pageURL:    "https://example.com/account/login",
			wantAction: "https://example.com/account/auth",
			wantMethod: "GET",
			wantInputs: 2,
		},
		{
			name:       "base href",
			body:       `<html><head><base href="https://auth.example.com/sso/"></head><body><form action="do"><input type="password" name="p"></form></body></html>`,
			pageURL:    "https://example.com/login",
			wantAction: "https://auth.example.com/sso/do",
			wantMethod: "POST",
			wantInputs: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			form, err := HeuristicLocator{}.Locate([]byte(tt.body), tt.pageURL)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if form.Action != tt.wantAction {
				t.Errorf("action = %q, want %q", form.Action, tt.wantAction)
			}
			if form.Method != tt.wantMethod {
				t.Errorf("method = %q, want %q", form.Method, tt.wantMethod)
			}
			if len(form.Inputs) != tt.wantInputs {
				t.Errorf("got %d inputs, want %d", len(form.Inputs), tt.wantInputs)
			}
			if !form.HasPasswordField() {
				t.Error("expected a password field")
			}
		})
	}
}

// TestHeuristicLocatorNoForm tests pages without a login form.
func TestHeuristicLocatorNoForm(t *testing.T) {
	t.Parallel()

	bodies := []string{
		"",
		"<html><body><p>Welcome back</p></body></html>",
		`<form action="/search"><input name="q"></form>`,
		`<input type="password" name="orphan">`,
	}
	for _, body := range bodies {
		if _, err := (HeuristicLocator{}).Locate([]byte(body), "https://example.com/"); !errors.Is(err, ErrNoLoginForm) {
			t.Errorf("expected ErrNoLoginForm for %q, got %v", body, err)
		}
	}
}

// TestFillForm tests field detection and default values.
func TestFillForm(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		inputs []model.FormInput
		want   map[string]string
	}{
		{
			name: "keyword in name",
			inputs: []model.FormInput{
				{Type: "text", Name: "user_login"},
				{Type: "password", Name: "secret"},
			},
			want: map[string]string{"user_login": "alice", "secret": "pw"},
		},
		{
			name: "keyword in id",
			inputs: []model.FormInput{
				{Type: "email", Name: "f1", ID: "emailField"},
				{Type: "password", Name: "f2"},
			},
			want: map[string]string{"f1": "alice", "f2": "pw"},
		},
		{
			name: "hidden checkbox and submit",
			inputs: []model.FormInput{
				{Type: "hidden", Name: "csrf", Value: "tok123"},
				{Type: "text", Name: "username"},
				{Type: "password", Name: "password"},
				{Type: "checkbox", Name: "remember", Checked: true},
				{Type: "checkbox", Name: "newsletter"},
				{Type: "submit", Name: "go", Value: "Sign in"},
				{Type: "submit", Name: "unnamed"},
			},
			want: map[string]string{
				"csrf":     "tok123",
				"username": "alice",
				"password": "pw",
				"remember": "on",
				"go":       "Sign in",
			},
		},
		{
			name: "fallback names",
			inputs: []model.FormInput{
				{Type: "tel", Name: "uid"},
				{Type: "text", Name: "pw"},
				{Type: "password", ID: "pwd"},
			},
			want: map[string]string{"uid": "alice", "pwd": "pw"},
		},
		{
			name: "fallback by id",
			inputs: []model.FormInput{
				{Type: "number", Name: "n1", ID: "userid"},
				{Type: "password", Name: "p"},
			},
			want: map[string]string{"n1": "alice", "p": "pw"},
		},
		{
			name:   "nothing to fill",
			inputs: []model.FormInput{{Type: "text", Name: "q"}},
			want:   map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			values := FillForm(&model.Form{Inputs: tt.inputs}, "alice", "pw")
			if len(values) != len(tt.want) {
				t.Errorf("got %v, want %v", values, tt.want)
			}
			for name, want := range tt.want {
				if got := values.Get(name); got != want {
					t.Errorf("%s = %q, want %q", name, got, want)
				}
			}
		})
	}
}
