package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	fcm "google.golang.org/api/fcm/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// ErrTokenUnregistered means the device token will never work again and
// should be dropped.
var ErrTokenUnregistered = errors.New("push token unregistered")

type Push struct {
	Title string
	Body  string
	Data  map[string]string
}

type Pusher interface {
	Push(ctx context.Context, token string, p Push) error
}

type FCMPusher struct {
	messages *fcm.ProjectsMessagesService
	parent   string
}

// NewFCMPusher builds an FCM HTTP v1 client. With an empty credentialsFile
// application default credentials are used.
func NewFCMPusher(ctx context.Context, projectID, credentialsFile string, opts ...option.ClientOption) (*FCMPusher, error) {
	if projectID == "" {
		return nil, errors.New("fcm project id is required")
	}
	opts = append([]option.ClientOption{option.WithScopes(fcm.FirebaseMessagingScope)}, opts...)
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	svc, err := fcm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create fcm service: %w", err)
	}
	return &FCMPusher{
		messages: svc.Projects.Messages,
		parent:   "projects/" + projectID,
	}, nil
}

func (f *FCMPusher) Push(ctx context.Context, token string, p Push) error {
	req := &fcm.SendMessageRequest{
		Message: &fcm.Message{
			Token: token,
			Notification: &fcm.Notification{
				Title: p.Title,
				Body:  p.Body,
			},
			Data: p.Data,
			Webpush: &fcm.WebpushConfig{
				Headers: map[string]string{"Urgency": "high"},
			},
		},
	}

	_, err := f.messages.Send(f.parent, req).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return ErrTokenUnregistered
		}
		return fmt.Errorf("fcm send: %w", err)
	}
	return nil
}
