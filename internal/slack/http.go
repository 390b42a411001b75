package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"
)

const defaultBaseURL = "https://slack.com/api"

// HTTPClient talks to the Slack Web API and Socket Mode. BaseURL is
// swappable for tests.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		BaseURL: defaultBaseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) call(ctx context.Context, method, token string, params url.Values, out any) error {
	endpoint := c.BaseURL + "/" + method
	var req *http.Request
	var err error
	if params == nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests {
		retry := 30 * time.Second
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil {
				retry = time.Duration(secs) * time.Second
			}
		}
		return &RateLimitError{RetryAfter: retry}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", method, err)
	}
	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if !envelope.OK {
		if envelope.Error == "ratelimited" {
			return &RateLimitError{RetryAfter: 30 * time.Second}
		}
		return &APIError{Method: method, Code: envelope.Error}
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode: %w", method, err)
		}
	}
	return nil
}

func (c *HTTPClient) OpenEventStream(ctx context.Context, appToken string) (Stream, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.call(ctx, "apps.connections.open", appToken, nil, &resp); err != nil {
		return nil, err
	}
	if resp.URL == "" {
		return nil, fmt.Errorf("apps.connections.open: no websocket url")
	}
	conn, _, err := websocket.Dial(ctx, resp.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial socket mode: %w", err)
	}
	conn.SetReadLimit(1 << 20)
	return &wsStream{conn: conn}, nil
}

// FetchChannelHistory returns one page of a channel's messages. Slack
// serves history newest first; callers that need chronological order walk
// each page in reverse.
func (c *HTTPClient) FetchChannelHistory(ctx context.Context, botToken, channel, cursor string) (HistoryPage, error) {
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("limit", "200")
	if cursor != "" {
		params.Set("cursor", cursor)
	}
	var resp struct {
		Messages         []HistoryMessage `json:"messages"`
		ResponseMetadata struct {
			NextCursor string `json:"next_cursor"`
		} `json:"response_metadata"`
		HasMore bool `json:"has_more"`
	}
	if err := c.call(ctx, "conversations.history", botToken, params, &resp); err != nil {
		return HistoryPage{}, err
	}
	page := HistoryPage{Messages: resp.Messages}
	if resp.HasMore {
		page.NextCursor = resp.ResponseMetadata.NextCursor
	}
	return page, nil
}

func (c *HTTPClient) FetchMessage(ctx context.Context, botToken, channel, ts string) (HistoryMessage, error) {
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("latest", ts)
	params.Set("inclusive", "true")
	params.Set("limit", "1")
	var resp struct {
		Messages []HistoryMessage `json:"messages"`
	}
	if err := c.call(ctx, "conversations.history", botToken, params, &resp); err != nil {
		return HistoryMessage{}, err
	}
	for _, m := range resp.Messages {
		if m.TS == ts {
			return m, nil
		}
	}
	if len(resp.Messages) > 0 {
		return resp.Messages[0], nil
	}
	return HistoryMessage{}, fmt.Errorf("message %s not found in %s", ts, channel)
}

func (c *HTTPClient) FetchReactions(ctx context.Context, botToken, channel, ts string) ([]Reaction, error) {
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("timestamp", ts)
	params.Set("full", "true")
	var resp struct {
		Message struct {
			Reactions []Reaction `json:"reactions"`
		} `json:"message"`
	}
	if err := c.call(ctx, "reactions.get", botToken, params, &resp); err != nil {
		return nil, err
	}
	return resp.Message.Reactions, nil
}

func (c *HTTPClient) ResolveMemberByEmail(ctx context.Context, botToken, email string) (string, string, error) {
	params := url.Values{}
	params.Set("email", email)
	var resp struct {
		User struct {
			ID      string `json:"id"`
			Name    string `json:"name"`
			Profile struct {
				RealName string `json:"real_name"`
			} `json:"profile"`
		} `json:"user"`
	}
	if err := c.call(ctx, "users.lookupByEmail", botToken, params, &resp); err != nil {
		return "", "", err
	}
	name := resp.User.Profile.RealName
	if name == "" {
		name = resp.User.Name
	}
	return resp.User.ID, name, nil
}

func (c *HTTPClient) ListChannels(ctx context.Context, botToken string) ([]string, error) {
	var channels []string
	cursor := ""
	for {
		params := url.Values{}
		params.Set("types", "public_channel")
		params.Set("limit", "200")
		if cursor != "" {
			params.Set("cursor", cursor)
		}
		var resp struct {
			Channels []struct {
				ID       string `json:"id"`
				IsMember bool   `json:"is_member"`
			} `json:"channels"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := c.call(ctx, "conversations.list", botToken, params, &resp); err != nil {
			return nil, err
		}
		for _, ch := range resp.Channels {
			if ch.IsMember {
				channels = append(channels, ch.ID)
			}
		}
		cursor = strings.TrimSpace(resp.ResponseMetadata.NextCursor)
		if cursor == "" {
			return channels, nil
		}
	}
}

func (c *HTTPClient) Permalink(ctx context.Context, botToken, channel, ts string) (string, error) {
	params := url.Values{}
	params.Set("channel", channel)
	params.Set("message_ts", ts)
	var resp struct {
		Permalink string `json:"permalink"`
	}
	if err := c.call(ctx, "chat.getPermalink", botToken, params, &resp); err != nil {
		return "", err
	}
	return resp.Permalink, nil
}
