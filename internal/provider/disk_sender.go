package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DiskSender is the development email adapter. It writes each message as an
// HTML file plus a JSON metadata file instead of sending it.
type DiskSender struct {
	dir string
}

func NewDiskSender(dir string) *DiskSender {
	return &DiskSender{dir: dir}
}

type diskMetadata struct {
	MessageID string `json:"message_id"`
	Timestamp string `json:"timestamp"`
	SendTo    string `json:"send_to"`
	Subject   string `json:"subject"`
	Tag       string `json:"tag,omitempty"`
}

func (d *DiskSender) Name() string { return "email-provider" }

func (d *DiskSender) ValidateDestination(to string) error {
	return validateEmailDestination(d.Name(), to)
}

func (d *DiskSender) ValidateMessage(msg Message) error {
	return validateEmailMessage(d.Name(), msg)
}

func (d *DiskSender) Send(_ context.Context, msg Message) (Receipt, error) {
	if err := d.ValidateDestination(msg.To); err != nil {
		return Receipt{}, err
	}
	if err := d.ValidateMessage(msg); err != nil {
		return Receipt{}, err
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return Receipt{}, d.fail(fmt.Errorf("create directory: %w", err))
	}

	id := uuid.NewString()
	now := time.Now()

	identifier := msg.Tag
	if identifier == "" {
		identifier = msg.Subject
	}
	base := fmt.Sprintf("%s_%s_%s", now.Format("2006_01_02_150405"), sanitizeFilename(identifier), id[:8])

	if err := os.WriteFile(filepath.Join(d.dir, base+".html"), []byte(msg.Body), 0o644); err != nil {
		return Receipt{}, d.fail(fmt.Errorf("write html: %w", err))
	}

	meta, err := json.MarshalIndent(diskMetadata{
		MessageID: id,
		Timestamp: now.Format(time.RFC3339),
		SendTo:    msg.To,
		Subject:   msg.Subject,
		Tag:       msg.Tag,
	}, "", "  ")
	if err != nil {
		return Receipt{}, d.fail(fmt.Errorf("marshal metadata: %w", err))
	}
	if err := os.WriteFile(filepath.Join(d.dir, base+".json"), meta, 0o644); err != nil {
		return Receipt{}, d.fail(fmt.Errorf("write metadata: %w", err))
	}

	return Receipt{MessageID: id, Delivered: true}, nil
}

// HealthCheck verifies the output directory can be created.
func (d *DiskSender) HealthCheck(context.Context) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return d.fail(err)
	}
	return nil
}

func (d *DiskSender) fail(err error) *Error {
	return &Error{Provider: d.Name(), Kind: KindServerError, Err: err}
}

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9\-_.]`)

func sanitizeFilename(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = sanitizeRegex.ReplaceAllString(s, "")

	const maxLength = 100
	if len(s) > maxLength {
		s = s[:maxLength]
	}
	if s == "" {
		s = "email"
	}
	return strings.ToLower(s)
}
