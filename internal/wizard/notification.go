package wizard

type Severity string

const (
	SeverityNormal      Severity = "normal"
	SeverityDestructive Severity = "destructive"
)

// Notification is a transient toast shown to the visitor.
type Notification struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

var (
	BookingConfirmed = Notification{
		Title:       "Booking Confirmed!",
		Description: "Your appointment has been successfully booked. We'll contact you shortly.",
		Severity:    SeverityNormal,
	}
	BookingFailed = Notification{
		Title:       "Error",
		Description: "Failed to book appointment. Please try again.",
		Severity:    SeverityDestructive,
	}
	MessageSent = Notification{
		Title:       "Message Sent!",
		Description: "Thank you for contacting us. We'll get back to you soon.",
		Severity:    SeverityNormal,
	}
	MessageFailed = Notification{
		Title:       "Error",
		Description: "Failed to save message. Please try again.",
		Severity:    SeverityDestructive,
	}
)
