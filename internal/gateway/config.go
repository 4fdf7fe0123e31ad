package gateway

import "github.com/LeventeLantos/kiosk-messaging/internal/config"

// FromConfig picks Twilio when its credentials are complete, then the
// webhook. It returns nil when neither is configured.
func FromConfig(cfg config.GatewayConfig) Sender {
	switch {
	case cfg.TwilioEnabled():
		return NewTwilioClient(cfg.TwilioBaseURL, cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFrom)
	case cfg.WebhookURL != "":
		return NewWebhookClient(cfg.WebhookURL)
	default:
		return nil
	}
}
