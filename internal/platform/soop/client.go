package soop

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

const (
	maxListPages  = 20
	pageSleep     = 100 * time.Millisecond
	defaultHost   = "play.sooplive.co.kr"
)

// Client talks to the SOOP HTTP index and chat-coordinate endpoints
// (spec.md §6). Grounded in the corpus's pkg/mist/client.go HTTP-client
// shape: a shared *http.Client, a base host, context on every call.
type Client struct {
	http   *http.Client
	host   string
	logger logging.Logger
}

// NewClient builds a SOOP API client against the given host (the live.*
// host named in spec.md §6; overridable for tests).
func NewClient(host string, logger logging.Logger) *Client {
	if host == "" {
		host = defaultHost
	}
	return &Client{
		http:   &http.Client{Timeout: 10 * time.Second},
		host:   host,
		logger: logger,
	}
}

type broadListResponse struct {
	Broad []broadEntry `json:"broad"`
}

type broadEntry struct {
	BroadNo       string   `json:"broad_no"`
	BNo           string   `json:"bno"`
	UserID        string   `json:"user_id"`
	UserNick      string   `json:"user_nick"`
	BroadTitle    string   `json:"broad_title"`
	CategoryName  string   `json:"category_name"`
	SubCategory   string   `json:"sub_category"`
	TotalViewCnt  json.Number `json:"total_view_cnt"`
	PCViewCnt     json.Number `json:"pc_view_cnt"`
	MobileViewCnt json.Number `json:"mobile_view_cnt"`
	BroadStart    string   `json:"broad_start"`
	HashTags      string   `json:"hash_tags"`
}

// ListLiveBroadcasts paginates the SOOP broadcast index until an empty page
// or the safety cap of maxListPages (spec.md §4.2).
func (c *Client) ListLiveBroadcasts(ctx context.Context) ([]model.RawBroadcast, error) {
	var out []model.RawBroadcast

	for page := 1; page <= maxListPages; page++ {
		entries, err := c.fetchPage(ctx, page)
		if err != nil {
			return out, fmt.Errorf("soop: list page %d: %w", page, err)
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			out = append(out, e.toRawBroadcast())
		}
		if page < maxListPages {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(pageSleep):
			}
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, page int) ([]broadEntry, error) {
	endpoint := fmt.Sprintf("https://live.%s/api/main_broad_list_api.php", c.host)
	form := url.Values{
		"selectType":  {"action"},
		"selectValue": {"all"},
		"orderType":   {"view_cnt"},
		"pageNo":      {strconv.Itoa(page)},
		"lang":        {"ko_KR"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed broadListResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode broad list: %w", err)
	}
	return parsed.Broad, nil
}

func (e broadEntry) toRawBroadcast() model.RawBroadcast {
	id := e.BroadNo
	if id == "" {
		id = e.BNo
	}
	return model.RawBroadcast{
		Platform:        model.PlatformSOOP,
		ChannelID:       e.UserID,
		BroadcastID:     id,
		BroadcasterID:   e.UserID,
		BroadcasterNick: e.UserNick,
		Title:           e.BroadTitle,
		CategoryID:      e.CategoryName,
		CategoryName:    e.SubCategory,
		ViewerCount:     numberOr(e.TotalViewCnt, 0),
		StartedAt:       parseBroadStart(e.BroadStart),
		Tags:            splitTags(e.HashTags),
	}
}

func numberOr(n json.Number, fallback int) int {
	v, err := n.Int64()
	if err != nil {
		return fallback
	}
	return int(v)
}

func parseBroadStart(raw string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}

// chatCoordsResponse mirrors the player_live_api.php CHANNEL envelope.
type chatCoordsResponse struct {
	Channel struct {
		Result   int    `json:"RESULT"`
		ChatNo   string `json:"CHATNO"`
		ChDomain string `json:"CHDOMAIN"`
		ChPt     string `json:"CHPT"`
	} `json:"CHANNEL"`
}

// FetchChatCoordinates resolves a channel's chat server endpoint
// (spec.md §4.2, §6).
func (c *Client) FetchChatCoordinates(ctx context.Context, channelID string) (model.ChatCoordinates, error) {
	endpoint := fmt.Sprintf("https://live.%s/afreeca/player_live_api.php?bjid=%s", c.host, url.QueryEscape(channelID))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return model.ChatCoordinates{}, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return model.ChatCoordinates{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.ChatCoordinates{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed chatCoordsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.ChatCoordinates{}, fmt.Errorf("decode chat coordinates: %w", err)
	}
	if parsed.Channel.Result != 1 {
		return model.ChatCoordinates{}, fmt.Errorf("soop: channel %s not live (RESULT=%d)", channelID, parsed.Channel.Result)
	}

	port, err := strconv.Atoi(parsed.Channel.ChPt)
	if err != nil {
		return model.ChatCoordinates{}, fmt.Errorf("invalid CHPT %q: %w", parsed.Channel.ChPt, err)
	}

	return model.ChatCoordinates{
		Host:       parsed.Channel.ChDomain,
		Port:       port + 1,
		ChatRoomID: parsed.Channel.ChatNo,
	}, nil
}
