// README: Firebase Cloud Messaging pusher for ride and system messages.
package notify

import (
	"context"
	"fmt"
	"strconv"

	"firebase.google.com/go/v4/messaging"
)

// Sender is the part of *messaging.Client the pusher needs.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMPusher struct {
	client Sender
}

func NewFCMPusher(client Sender) *FCMPusher {
	return &FCMPusher{client: client}
}

// Push sends m as a high-priority notification. Ride messages carry the ride
// in the data payload so the apps can open it.
func (p *FCMPusher) Push(ctx context.Context, deviceToken string, m *Message) (string, error) {
	if deviceToken == "" {
		return "", fmt.Errorf("%w: %s", ErrNoDevice, m.ReceiverID)
	}

	data := map[string]string{
		"type":       string(KindSystem),
		"title":      m.Title,
		"message":    m.Body,
		"sound":      m.Sound,
		"message_id": strconv.FormatInt(m.ID, 10),
	}
	if m.Kind != KindSystem {
		data["type"] = "ride_state"
		data["ride_id"] = string(m.RideID)
		data["ride_state"] = string(m.RideState)
	}
	if m.NotifyHelpdesk {
		data["notify_helpdesk"] = "true"
	}

	msg := &messaging.Message{
		Token: deviceToken,
		Data:  data,
		Notification: &messaging.Notification{
			Title: m.Title,
			Body:  m.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority:     "high",
			Notification: &messaging.AndroidNotification{Sound: m.Sound},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{Aps: &messaging.Aps{Sound: m.Sound}},
		},
	}

	id, err := p.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("sending FCM to %s: %w", m.ReceiverID, err)
	}
	return id, nil
}
