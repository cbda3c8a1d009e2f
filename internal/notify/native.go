package notify

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// NativeNotifier surfaces a best-effort OS-level notification for a
// presented event by pushing to this device's own FCM registration token.
// Initialization may fail (missing credentials, denied registration) - the
// presenter then runs with a nil notifier and toasts alone.
type NativeNotifier struct {
	client      *messaging.Client
	deviceToken string
}

// NewNativeNotifier creates a notifier from a credentials file
func NewNativeNotifier(credentialsFile, deviceToken string) (*NativeNotifier, error) {
	ctx := context.Background()

	opt := option.WithCredentialsFile(credentialsFile)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &NativeNotifier{client: client, deviceToken: deviceToken}, nil
}

// NewNativeNotifierFromBase64 creates a notifier from base64-encoded
// credentials, for deployments where a credentials file can't be shipped
func NewNativeNotifierFromBase64(credentialsBase64, deviceToken string) (*NativeNotifier, error) {
	ctx := context.Background()

	credentialsJSON, err := base64.StdEncoding.DecodeString(credentialsBase64)
	if err != nil {
		return nil, fmt.Errorf("error decoding base64 credentials: %w", err)
	}

	opt := option.WithCredentialsJSON(credentialsJSON)
	app, err := firebase.NewApp(ctx, nil, opt)
	if err != nil {
		return nil, fmt.Errorf("error initializing Firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting messaging client: %w", err)
	}

	return &NativeNotifier{client: client, deviceToken: deviceToken}, nil
}

// Notify sends a native notification with title/body. Best-effort: failures
// are logged and skipped, the toast presentation already happened. Safe on
// a nil receiver.
func (n *NativeNotifier) Notify(title, body string, data map[string]string) {
	if n == nil || n.client == nil || n.deviceToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	message := &messaging.Message{
		Token: n.deviceToken,
		Notification: &messaging.Notification{
			Title: title,
			Body:  body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
					Sound:            "default",
				},
			},
		},
	}

	response, err := n.client.Send(ctx, message)
	if err != nil {
		log.Printf("⚠️  Native notification failed: %v (toast still shown)", err)
		return
	}

	log.Printf("✅ Native notification sent: %s", response)
}
