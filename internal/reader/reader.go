package reader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/code-100-precent/LingBook/internal/models"
	"github.com/code-100-precent/LingBook/pkg/logger"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
)

var (
	ErrEmptyDocument = errors.New("document has no readable content")
	ErrNotFound      = errors.New("document not found")
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	untitled         = "Unknown Novel"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Reader loads documents from local files or web pages.
type Reader struct {
	client *resty.Client
}

func New(timeout time.Duration) *Reader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("User-Agent", defaultUserAgent).
		SetHeader("Accept", "text/html,application/xhtml+xml")
	return NewWithClient(client)
}

func NewWithClient(client *resty.Client) *Reader {
	return &Reader{client: client}
}

// IsURL reports whether source should be fetched over HTTP.
func IsURL(source string) bool {
	s := strings.ToLower(strings.TrimSpace(source))
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Read returns the document at source, a file path or an http(s) URL.
func (r *Reader) Read(ctx context.Context, source string) (*models.Document, error) {
	var (
		doc *models.Document
		err error
	)
	if IsURL(source) {
		doc, err = r.fetch(ctx, source)
	} else {
		doc, err = readFile(source)
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDocument, source)
	}
	logger.Info("document read",
		zap.String("title", doc.Title),
		zap.String("source", source),
		zap.Int("chars", utf8.RuneCountInString(doc.Content)))
	return doc, nil
}

func readFile(path string) (*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return models.NewDocument(title, path, DecodeText(data)), nil
}

func (r *Reader) fetch(ctx context.Context, url string) (*models.Document, error) {
	resp, err := r.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode() == 404 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, url)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode())
	}

	page, err := ParsePage(bytes.NewReader(DecodeBytes(resp.Body())))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return models.NewDocument(page.Title, url, page.Content), nil
}

// DecodeText strips a UTF-8 BOM and decodes non-UTF-8 bytes as GB18030.
func DecodeText(data []byte) string {
	return string(DecodeBytes(data))
}

func DecodeBytes(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return data
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
	if err != nil {
		logger.Warn("text is neither utf-8 nor gb18030, keeping raw bytes", zap.Error(err))
		return data
	}
	return out
}

// 站点名分隔符: " - "、"_"、"|"、"｜"；标题内部的空格保留
var titleTail = regexp.MustCompile(`\s*(?:\s-\s|_|\||｜).*$`)

// cleanTitle keeps the part of a page title before the site separator,
// so "第一章 风起 - 某某小说网" becomes "第一章 风起".
func cleanTitle(title string) string {
	title = titleTail.ReplaceAllString(strings.TrimSpace(title), "")
	if title == "" {
		return untitled
	}
	return title
}
