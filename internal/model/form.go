package model

import "strings"

// Form represents an HTML form element.
type Form struct {
	// Action is the form's action attribute, resolved to an absolute URL.
	// Empty actions resolve to the page URL.
	Action string `json:"action"`

	// Method is the upper-cased HTTP method.
	Method string `json:"method"`

	// ID is the form's id attribute.
	ID string `json:"id,omitempty"`

	// Name is the form's name attribute.
	Name string `json:"name,omitempty"`

	// Inputs contains the form's input fields in document order.
	Inputs []FormInput `json:"inputs,omitempty"`
}

// FormInput represents an input field in a form.
type FormInput struct {
	// Type is the lower-cased input type. Defaults to "text".
	Type string `json:"type"`

	// Name is the input's name attribute.
	Name string `json:"name"`

	// ID is the input's id attribute.
	ID string `json:"id,omitempty"`

	// Value is the input's default value.
	Value string `json:"value,omitempty"`

	// Checked is set for checkboxes and radio buttons carrying the
	// checked attribute.
	Checked bool `json:"checked,omitempty"`
}

// HasPasswordField reports whether the form contains a password input.
func (f *Form) HasPasswordField() bool {
	for _, in := range f.Inputs {
		if in.Type == "password" {
			return true
		}
	}
	return false
}

// IsPost reports whether the form is submitted with POST.
func (f *Form) IsPost() bool {
	return strings.EqualFold(f.Method, "POST")
}
