package notification

import "fmt"

// Channel is a delivery medium.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Channels lists every supported channel.
var Channels = []Channel{ChannelEmail, ChannelSMS, ChannelWhatsApp}

// ParseChannel converts s into a Channel, rejecting unknown values.
func ParseChannel(s string) (Channel, error) {
	switch c := Channel(s); c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

func (c Channel) Valid() bool {
	_, err := ParseChannel(string(c))
	return err == nil
}

func (c Channel) String() string { return string(c) }

// Status is the lifecycle state of a notification.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every lifecycle state.
var Statuses = []Status{StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusCancelled}

// ParseStatus converts s into a Status, rejecting unknown values.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusSent, StatusDelivered, StatusFailed, StatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further transitions are possible from s.
func (s Status) IsTerminal() bool {
	return lifecycle.IsFinal(s)
}

type event string

const (
	eventSend    event = "send"
	eventDeliver event = "deliver"
	eventFail    event = "fail"
	eventCancel  event = "cancel"
)
