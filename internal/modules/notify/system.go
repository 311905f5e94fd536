// README: Admin system messages to one user and bulk sends to many.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"twende/internal/types"
)

var ErrBadRequest = errors.New("invalid message")

const maxTextLen = 100

type SystemCommand struct {
	ReceiverID types.ID
	Subject    string
	Message    string
}

type BulkCommand struct {
	ReceiverIDs []types.ID
	Subject     string
	Message     string
}

// SendSystem stores a system message for one user and pushes it. A failed
// push leaves the message stored with no sent time.
func (s *Service) SendSystem(ctx context.Context, cmd SystemCommand) (*Message, error) {
	subject, body, err := checkText(cmd.Subject, cmd.Message)
	if err != nil {
		return nil, err
	}
	if _, err := s.users.Get(ctx, cmd.ReceiverID); err != nil {
		return nil, err
	}
	m := s.systemMessage(cmd.ReceiverID, subject, body, nil)
	if err := s.Send(ctx, m); err != nil {
		if m.ID == 0 {
			return nil, err
		}
		s.log.WithError(err).WithField("receiver_id", m.ReceiverID).Warn("system message stored but not pushed")
	}
	return m, nil
}

// SendBulk sends one system message per distinct receiver under a shared bulk
// record. Receivers that could not be pushed to are listed in Failed.
func (s *Service) SendBulk(ctx context.Context, cmd BulkCommand) (*BulkResult, error) {
	subject, body, err := checkText(cmd.Subject, cmd.Message)
	if err != nil {
		return nil, err
	}
	receivers := distinct(cmd.ReceiverIDs)
	if len(receivers) == 0 {
		return nil, fmt.Errorf("%w: no receivers", ErrBadRequest)
	}

	b := &Bulk{Subject: subject, Message: body, Receivers: len(receivers), CreatedAt: s.now()}
	if err := s.store.CreateBulk(ctx, b); err != nil {
		return nil, err
	}

	res := &BulkResult{Bulk: b, Failed: []types.ID{}}
	for _, id := range receivers {
		if _, err := s.users.Get(ctx, id); err != nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		m := s.systemMessage(id, subject, body, &b.ID)
		if err := s.Send(ctx, m); err != nil || m.SentAt == nil {
			res.Failed = append(res.Failed, id)
			continue
		}
		res.Sent++
	}

	at := s.now()
	if err := s.store.MarkBulkSent(ctx, b.ID, at); err != nil {
		return nil, err
	}
	b.SentAt = &at
	s.log.WithFields(logrus.Fields{"bulk_id": b.ID, "sent": res.Sent, "failed": len(res.Failed)}).Info("bulk message sent")
	return res, nil
}

func (s *Service) systemMessage(to types.ID, subject, body string, bulkID *int64) *Message {
	return &Message{
		Kind:       KindSystem,
		BulkID:     bulkID,
		Title:      subject,
		Body:       body,
		ReceiverID: to,
		Sound:      DefaultSound,
		CreatedAt:  s.now(),
	}
}

func checkText(subject, body string) (string, string, error) {
	subject, body = strings.TrimSpace(subject), strings.TrimSpace(body)
	if subject == "" || body == "" {
		return "", "", fmt.Errorf("%w: subject and message are required", ErrBadRequest)
	}
	if utf8.RuneCountInString(subject) > maxTextLen || utf8.RuneCountInString(body) > maxTextLen {
		return "", "", fmt.Errorf("%w: subject and message are limited to %d characters", ErrBadRequest, maxTextLen)
	}
	return subject, body, nil
}

func distinct(ids []types.ID) []types.ID {
	seen := make(map[types.ID]bool, len(ids))
	out := make([]types.ID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
