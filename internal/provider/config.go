package provider

import "time"

// MessagingConfig configures the SMS and WhatsApp adapter.
type MessagingConfig struct {
	BaseURL           string        `env:"MESSAGING_BASE_URL" envDefault:"https://api.twilio.com"`
	AccountSID        string        `env:"MESSAGING_ACCOUNT_SID"`
	AuthToken         string        `env:"MESSAGING_AUTH_TOKEN"`
	FromNumber        string        `env:"MESSAGING_FROM_NUMBER"`
	WhatsAppFrom      string        `env:"MESSAGING_WHATSAPP_FROM"`
	StatusCallbackURL string        `env:"MESSAGING_STATUS_CALLBACK_URL"`
	Timeout           time.Duration `env:"MESSAGING_TIMEOUT" envDefault:"30s"`
}

// PostmarkConfig configures the email adapter.
// With DevDir set and no server token the disk sender is used instead.
type PostmarkConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `env:"SENDER_EMAIL" envDefault:"notifications@example.com"`
	SupportEmail string `env:"SUPPORT_EMAIL" envDefault:"support@example.com"`
	DevDir       string `env:"EMAIL_DEV_DIR" envDefault:"./tmp/emails"`
}
