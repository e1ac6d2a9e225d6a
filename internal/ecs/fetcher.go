package ecs

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"ecs_event_collector/internal/config"
	"ecs_event_collector/internal/logger"
	"ecs_event_collector/internal/models"
)

// HeaderAuthToken carries the session token issued by /login.
const HeaderAuthToken = "X-SDS-AUTH-TOKEN"

const (
	loginPath  = "/login"
	eventsPath = "/vdc/events"
	logoutPath = "/logout"
)

// Fetcher runs the login, events and logout exchange against one ECS
// endpoint. A Fetcher holds no token between calls.
type Fetcher struct {
	client     *Client
	baseURL    *url.URL
	user       string
	password   config.Secret
	maxRetries int
	log        *logger.Logger
}

func NewFetcher(cfg config.Config, client *Client, log *logger.Logger) (*Fetcher, error) {
	if client == nil {
		return nil, errors.New("ecs: client is nil")
	}
	if log == nil {
		log = logger.Nop()
	}
	base, err := url.Parse("https://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return nil, fmt.Errorf("ecs: invalid endpoint: %w", err)
	}
	return &Fetcher{
		client:     client,
		baseURL:    base,
		user:       cfg.User,
		password:   cfg.Password,
		maxRetries: DefaultMaxRetries,
		log:        log,
	}, nil
}

// Fetch returns the raw events of window in the given format. HTML is
// fetched as XML. Once a token was obtained logout is always attempted,
// and its failure never fails Fetch.
func (f *Fetcher) Fetch(ctx context.Context, window models.TimeWindow, format models.ReportFormat) (models.EventPayload, error) {
	token, err := f.Login(ctx)
	if err != nil {
		return models.EventPayload{}, fmt.Errorf("login: %w", err)
	}
	defer func() {
		// The session is released even when ctx was cancelled mid-fetch.
		if err := f.Logout(context.WithoutCancel(ctx), token); err != nil {
			f.log.Warnw("logout_failed", "err", err)
		}
	}()

	payload, err := f.events(ctx, token, window, format.FetchFormat())
	if err != nil {
		return models.EventPayload{}, fmt.Errorf("fetch events: %w", err)
	}
	return payload, nil
}

// Login authenticates with basic auth and returns the session token.
func (f *Fetcher) Login(ctx context.Context) (string, error) {
	req, err := f.newRequest(ctx, loginPath, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(f.user, f.password.Reveal())

	resp, err := f.client.Send(ctx, req, f.maxRetries)
	if err != nil {
		return "", &AuthenticationError{User: f.user, Err: err}
	}
	drain(resp.Body)

	token := resp.Header.Get(HeaderAuthToken)
	if token == "" {
		return "", &AuthenticationError{User: f.user, Status: resp.StatusCode}
	}
	f.log.Debugw("login_succeeded", "user", f.user, "token_len", len(token))
	return token, nil
}

// Logout invalidates token. Callers log and discard the error.
func (f *Fetcher) Logout(ctx context.Context, token string) error {
	req, err := f.newRequest(ctx, logoutPath, nil)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAuthToken, token)

	resp, err := f.client.Send(ctx, req, f.maxRetries)
	if err != nil {
		return err
	}
	drain(resp.Body)
	return nil
}

func (f *Fetcher) events(ctx context.Context, token string, window models.TimeWindow, format models.ReportFormat) (models.EventPayload, error) {
	query := url.Values{}
	query.Set("start_time", window.StartParam())
	query.Set("end_time", window.EndParam())

	req, err := f.newRequest(ctx, eventsPath, query)
	if err != nil {
		return models.EventPayload{}, err
	}
	req.Header.Set(HeaderAuthToken, token)
	req.Header.Set("Accept", format.MediaType())

	resp, err := f.client.Send(ctx, req, f.maxRetries)
	if err != nil {
		return models.EventPayload{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.EventPayload{}, fmt.Errorf("read body: %w", err)
	}

	payload := models.EventPayload{Body: body, Format: format}
	if marker := nextMarker(body, format); marker != "" {
		payload.Truncated = true
		f.log.Warnw("events_truncated",
			"window_start", window.StartParam(), "window_end", window.EndParam(),
			"next_marker", marker, "payload_bytes", len(body))
	}
	f.log.Infow("events_fetched",
		"window_start", window.StartParam(), "window_end", window.EndParam(),
		"format", format, "payload_bytes", len(body))
	return payload, nil
}

func (f *Fetcher) newRequest(ctx context.Context, path string, query url.Values) (*http.Request, error) {
	u := *f.baseURL
	u.Path = path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	return req, nil
}

// nextMarker extracts the continuation marker ECS adds to a partial result
// page. Unparseable bodies are treated as complete.
func nextMarker(body []byte, format models.ReportFormat) string {
	var page struct {
		NextMarker string `json:"NextMarker" xml:"NextMarker"`
	}
	var err error
	if format == models.FormatXML {
		err = xml.Unmarshal(body, &page)
	} else {
		err = json.Unmarshal(body, &page)
	}
	if err != nil {
		return ""
	}
	return page.NextMarker
}
