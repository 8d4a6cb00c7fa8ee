package chzzk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/injooinjoo/streaming-agent-sub004/internal/logging"
	"github.com/injooinjoo/streaming-agent-sub004/internal/model"
)

const (
	maxListPages  = 40
	pageSize      = 50
	pageSleep     = 100 * time.Millisecond
	defaultHost   = "chzzk.naver.com"
	userAgent     = "Mozilla/5.0 (compatible; analytics-collector/1.0)"
)

// Client talks to the CHZZK HTTP index and live-detail endpoints
// (spec.md §6).
type Client struct {
	http   *http.Client
	host   string
	logger logging.Logger
}

// NewClient builds a CHZZK API client against the given host.
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

type livesResponse struct {
	Content struct {
		StreamingLiveList []liveEntry `json:"streamingLiveList"`
	} `json:"content"`
}

type liveEntry struct {
	ChannelID       string   `json:"channelId"`
	LiveID          int64    `json:"liveId"`
	LiveTitle       string   `json:"liveTitle"`
	ChannelName     string   `json:"channelName"`
	Concurrentusers int      `json:"concurrentUserCount"`
	LiveCategory    string   `json:"liveCategory"`
	LiveCategoryVal string   `json:"liveCategoryValue"`
	LiveThumbnail   string   `json:"liveImageUrl"`
	OpenDate        string   `json:"openDate"`
	Tags            []string `json:"tags"`
}

// ListLiveBroadcasts paginates the CHZZK broadcast index until an empty
// page or the safety cap of maxListPages*pageSize (spec.md §4.2).
func (c *Client) ListLiveBroadcasts(ctx context.Context) ([]model.RawBroadcast, error) {
	var out []model.RawBroadcast

	for page := 0; page < maxListPages; page++ {
		entries, err := c.fetchPage(ctx, page*pageSize)
		if err != nil {
			return out, fmt.Errorf("chzzk: list page offset %d: %w", page*pageSize, err)
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			out = append(out, e.toRawBroadcast())
		}
		if page < maxListPages-1 {
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(pageSleep):
			}
		}
	}
	return out, nil
}

func (c *Client) fetchPage(ctx context.Context, offset int) ([]liveEntry, error) {
	endpoint := fmt.Sprintf("https://api.%s/service/v1/home/lives?size=%d&offset=%d", c.host, pageSize, offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", fmt.Sprintf("https://%s/", c.host))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed livesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode lives: %w", err)
	}
	return parsed.Content.StreamingLiveList, nil
}

func (e liveEntry) toRawBroadcast() model.RawBroadcast {
	return model.RawBroadcast{
		Platform:        model.PlatformCHZZK,
		ChannelID:       e.ChannelID,
		BroadcastID:     fmt.Sprintf("%d", e.LiveID),
		BroadcasterID:   e.ChannelID,
		BroadcasterNick: e.ChannelName,
		Title:           e.LiveTitle,
		CategoryID:      e.LiveCategory,
		CategoryName:    e.LiveCategoryVal,
		Thumbnail:       e.LiveThumbnail,
		ViewerCount:     e.Concurrentusers,
		StartedAt:       parseOpenDate(e.OpenDate),
		Tags:            e.Tags,
	}
}

func parseOpenDate(raw string) time.Time {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}

type liveDetailResponse struct {
	Code    int `json:"code"`
	Content struct {
		ChatChannelID string `json:"chatChannelId"`
	} `json:"content"`
}

// FetchChatCoordinates resolves a channel's chat channel id, then maps it
// onto one of the kr-ss<1..5> chat hosts named in spec.md §6. CHZZK does not
// hand back a numeric port; Port is left 0 and the session dials the fixed
// wss://…/chat path directly.
func (c *Client) FetchChatCoordinates(ctx context.Context, channelID string) (model.ChatCoordinates, error) {
	endpoint := fmt.Sprintf("https://api.%s/service/v3/channels/%s/live-detail", c.host, channelID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.ChatCoordinates{}, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return model.ChatCoordinates{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return model.ChatCoordinates{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var parsed liveDetailResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return model.ChatCoordinates{}, fmt.Errorf("decode live detail: %w", err)
	}
	if parsed.Code != 200 {
		return model.ChatCoordinates{}, fmt.Errorf("chzzk: channel %s not live (code=%d)", channelID, parsed.Code)
	}

	return model.ChatCoordinates{
		Host:       chatShardHost(parsed.Content.ChatChannelID, c.host),
		ChatRoomID: parsed.Content.ChatChannelID,
	}, nil
}

// chatShardHost deterministically maps a chat channel id onto one of the
// five kr-ss shards (spec.md §6: "wss://kr-ss<1..5>.chat.<host>/chat").
func chatShardHost(chatChannelID, host string) string {
	const shardCount = 5
	sum := 0
	for _, r := range chatChannelID {
		sum += int(r)
	}
	shard := (sum % shardCount) + 1
	return fmt.Sprintf("kr-ss%d.chat.%s", shard, host)
}
