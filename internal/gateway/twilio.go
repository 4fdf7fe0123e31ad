package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const DefaultTwilioBaseURL = "https://api.twilio.com"

// TwilioClient sends through the Messages resource of the Twilio REST API.
type TwilioClient struct {
	from string
	api  *twilio.RestClient
}

// NewTwilioClient builds a client for the given account. A non-default
// baseURL redirects every request to that host (proxies, tests).
func NewTwilioClient(baseURL, accountSID, authToken, from string) *TwilioClient {
	hc := &http.Client{Timeout: 10 * time.Second}
	if baseURL != "" && strings.TrimRight(baseURL, "/") != DefaultTwilioBaseURL {
		if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
			hc.Transport = rehost{target: u, next: http.DefaultTransport}
		}
	}

	rc := &twclient.Client{
		Credentials: twclient.NewCredentials(accountSID, authToken),
		HTTPClient:  hc,
	}
	rc.SetAccountSid(accountSID)

	return &TwilioClient{
		from: from,
		api:  twilio.NewRestClientWithParams(twilio.ClientParams{Client: rc}),
	}
}

// Send creates one message. The SDK call takes no context, so ctx is only
// checked before the request; the HTTP timeout bounds the call itself.
func (c *TwilioClient) Send(ctx context.Context, phoneNumber, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(phoneNumber)
	params.SetFrom(c.from)
	params.SetBody(message)

	m, err := c.api.Api.CreateMessage(params)
	if err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(err, &restErr) {
			gwErr := &Error{Provider: "twilio", Status: restErr.Status, Message: restErr.Message}
			if restErr.Code != 0 {
				gwErr.Code = strconv.Itoa(restErr.Code)
			}
			return "", gwErr
		}
		return "", fmt.Errorf("twilio create message: %w", err)
	}

	if m.ErrorCode != nil && *m.ErrorCode != 0 {
		gwErr := &Error{Provider: "twilio", Status: http.StatusOK, Code: strconv.Itoa(*m.ErrorCode)}
		if m.ErrorMessage != nil {
			gwErr.Message = *m.ErrorMessage
		}
		return "", gwErr
	}
	if m.Sid == nil || *m.Sid == "" {
		return "", errors.New("twilio reply without message sid")
	}
	return *m.Sid, nil
}

// rehost sends requests to target's scheme and host, keeping path and query.
type rehost struct {
	target *url.URL
	next   http.RoundTripper
}

func (r rehost) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = r.target.Scheme
	out.URL.Host = r.target.Host
	out.Host = r.target.Host
	return r.next.RoundTrip(out)
}
