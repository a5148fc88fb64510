package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

var (
	ErrEmptyText           = errors.New("synthesizer: text is empty")
	ErrEmptyAudio          = errors.New("synthesizer: provider returned no audio")
	ErrEmptyReference      = errors.New("synthesizer: reference audio is empty")
	ErrMissingAPIKey       = errors.New("synthesizer: api key is required")
	ErrUnsupportedProvider = errors.New("synthesizer: unsupported provider")
	ErrUnsupportedFormat   = errors.New("synthesizer: unsupported audio format")
)

type ErrorKind string

const (
	// KindTransient failures are worth retrying: transport errors, timeouts, throttling, 5xx.
	KindTransient ErrorKind = "transient"
	// KindApplication failures are rejections of the request itself.
	KindApplication ErrorKind = "application"
)

// SynthesisError is a classified provider failure.
type SynthesisError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *SynthesisError) Error() string {
	msg := fmt.Sprintf("%s %s error", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

func NewTransientError(provider, message string, err error) *SynthesisError {
	return &SynthesisError{Kind: KindTransient, Provider: provider, Message: message, Err: err}
}

func NewApplicationError(provider, message string, err error) *SynthesisError {
	return &SynthesisError{Kind: KindApplication, Provider: provider, Message: message, Err: err}
}

// FromStatus classifies a non-2xx HTTP response.
func FromStatus(provider string, status int, body string) *SynthesisError {
	// 响应体截断，避免日志和错误信息过长
	if len(body) > 512 {
		body = body[:512]
	}
	kind := KindApplication
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests || status >= 500 {
		kind = KindTransient
	}
	return &SynthesisError{Kind: kind, Provider: provider, StatusCode: status, Message: body}
}

// IsTransient reports whether err should be retried. Caller cancellation
// never is; a per-attempt deadline is.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *SynthesisError
	if errors.As(err, &se) && se.Kind == KindApplication {
		return false
	}
	if errors.As(err, &se) && se.Kind == KindTransient {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	// 网络层错误：超时、连接被拒绝或重置都值得重试
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
