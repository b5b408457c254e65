package wizard

import (
	"net/mail"
	"net/url"
	"strings"

	"physioheal/internal/models"
)

const composeBase = "https://mail.google.com/mail/?view=cm&fs=1"

// ValidateContact checks the contact form's required inputs in form order.
func ValidateContact(f models.ContactForm) error {
	var errs []FieldError
	if blank(f.Name) {
		errs = append(errs, missing("name", "Name", "Name is required"))
	}
	switch {
	case blank(f.Email):
		errs = append(errs, missing("email", "Email", "Email is required"))
	case !validEmail(f.Email):
		errs = append(errs, FieldError{
			Field:   "email",
			Title:   "Invalid Email",
			Message: "Please enter a valid email address",
		})
	}
	for _, c := range []struct {
		field, label, value string
		max                 int
	}{
		{"name", "Name", f.Name, MaxFieldLength},
		{"email", "Email", f.Email, MaxFieldLength},
		{"phone", "Phone", f.Phone, MaxFieldLength},
		{"service", "Service", f.Service, MaxFieldLength},
		{"message", "Message", f.Message, MaxMessageLength},
	} {
		if exceeds(c.value, c.max) {
			errs = append(errs, tooLong(c.field, c.label, c.max))
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// NewContactMessage trims the form into the record handed to the store.
func NewContactMessage(f models.ContactForm) *models.ContactMessage {
	return &models.ContactMessage{
		Name:    strings.TrimSpace(f.Name),
		Email:   strings.TrimSpace(f.Email),
		Phone:   strings.TrimSpace(f.Phone),
		Service: strings.TrimSpace(f.Service),
		Message: f.Message,
	}
}

// ComposeURL builds a Gmail compose link addressed to the clinic and
// pre-filled with the visitor's message.
func ComposeURL(to, subject string, f models.ContactForm) string {
	return composeLink(to, subject, MessageBody(f.Name, f.Email, f.Phone, f.Message))
}

// MessageBody is the plain-text inquiry shared by the compose link and
// the e-mail relay. A blank phone reads "Not provided".
func MessageBody(name, email, phone, message string) string {
	if blank(phone) {
		phone = notProvided
	}
	return strings.Join([]string{
		"Name: " + name,
		"Email: " + email,
		"Phone: " + phone,
		"Message: " + message,
	}, "\r\n")
}

// InquiryURL is the plain compose link used by the e-mail card.
func InquiryURL(to, subject string) string {
	return composeLink(to, subject, "Hello, I would like to inquire about your services.")
}

func composeLink(to, subject, body string) string {
	return composeBase +
		"&to=" + escape(to) +
		"&su=" + escape(subject) +
		"&body=" + escape(body)
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// validEmail approximates the browser's type=email check: a bare
// addr-spec without a display name.
func validEmail(s string) bool {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && at < len(s)-1
}
