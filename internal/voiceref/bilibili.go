package voiceref

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/carlmjohnson/requests"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"go.uber.org/zap"
)

const (
	DefaultAPIBase = "https://api.bilibili.com"
	referer        = "https://www.bilibili.com"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var (
	ErrNoAudioStream = errors.New("bilibili: video has no audio stream")

	bvidPattern = regexp.MustCompile(`BV[0-9A-Za-z]+`)
)

// APIError is a non-zero code in a Bilibili API envelope.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili: api code %d: %s", e.Code, e.Message)
}

// ExtractBVID finds the BV id in a video URL or bare id.
func ExtractBVID(source string) (string, bool) {
	id := bvidPattern.FindString(source)
	return id, id != ""
}

type VideoInfo struct {
	BVID  string `json:"bvid"`
	CID   int64  `json:"cid"`
	Title string `json:"title"`
}

type envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type dashStream struct {
	ID        int    `json:"id"`
	BaseURL   string `json:"baseUrl"`
	BaseURL2  string `json:"base_url"`
	Bandwidth int64  `json:"bandwidth"`
}

type playInfo struct {
	Dash struct {
		Audio []dashStream `json:"audio"`
	} `json:"dash"`
}

// BilibiliClient fetches the audio track of a Bilibili video.
type BilibiliClient struct {
	apiBase string
	cookie  string
	client  *http.Client
}

func NewBilibiliClient(apiBase, cookie string, client *http.Client) *BilibiliClient {
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &BilibiliClient{apiBase: apiBase, cookie: cookie, client: client}
}

func (c *BilibiliClient) api(path string) *requests.Builder {
	b := requests.URL(c.apiBase).
		Path(path).
		Client(c.client).
		Header("Referer", referer).
		UserAgent(userAgent)
	if c.cookie != "" {
		b = b.Header("Cookie", c.cookie)
	}
	return b
}

func (c *BilibiliClient) VideoInfo(ctx context.Context, bvid string) (*VideoInfo, error) {
	var resp envelope[VideoInfo]
	err := c.api("/x/web-interface/view").
		Param("bvid", bvid).
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("bilibili: video info %s: %w", bvid, err)
	}
	if resp.Code != 0 {
		return nil, &APIError{Code: resp.Code, Message: resp.Message}
	}
	if resp.Data.BVID == "" {
		resp.Data.BVID = bvid
	}
	return &resp.Data, nil
}

// AudioStreamURL picks the DASH audio stream with the highest bandwidth.
func (c *BilibiliClient) AudioStreamURL(ctx context.Context, bvid string, cid int64) (string, error) {
	var resp envelope[playInfo]
	err := c.api("/x/player/playurl").
		Param("bvid", bvid).
		Param("cid", strconv.FormatInt(cid, 10)).
		Param("fnval", "16").
		ToJSON(&resp).
		Fetch(ctx)
	if err != nil {
		return "", fmt.Errorf("bilibili: play url %s: %w", bvid, err)
	}
	if resp.Code != 0 {
		return "", &APIError{Code: resp.Code, Message: resp.Message}
	}

	var best *dashStream
	for i := range resp.Data.Dash.Audio {
		s := &resp.Data.Dash.Audio[i]
		if s.BaseURL == "" {
			s.BaseURL = s.BaseURL2
		}
		if s.BaseURL == "" {
			continue
		}
		if best == nil || s.Bandwidth > best.Bandwidth {
			best = s
		}
	}
	if best == nil {
		return "", ErrNoAudioStream
	}
	return best.BaseURL, nil
}

// Download saves url to path; the CDN rejects requests without a referer.
func (c *BilibiliClient) Download(ctx context.Context, url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	err := requests.URL(url).
		Client(c.client).
		Header("Referer", referer).
		UserAgent(userAgent).
		ToFile(path).
		Fetch(ctx)
	if err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("bilibili: download audio: %w", err)
	}
	return nil
}

// ExtractAudio downloads the audio track of the video named by source into
// dir as <bvid>.m4a.
func (c *BilibiliClient) ExtractAudio(ctx context.Context, source, dir string) (string, *VideoInfo, error) {
	bvid, ok := ExtractBVID(source)
	if !ok {
		return "", nil, fmt.Errorf("bilibili: no BV id in %q", source)
	}
	info, err := c.VideoInfo(ctx, bvid)
	if err != nil {
		return "", nil, err
	}
	url, err := c.AudioStreamURL(ctx, info.BVID, info.CID)
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, info.BVID+".m4a")
	if err := c.Download(ctx, url, path); err != nil {
		return "", nil, err
	}
	logger.Info("bilibili audio extracted",
		zap.String("bvid", info.BVID),
		zap.String("title", info.Title),
		zap.String("path", path))
	return path, info, nil
}
