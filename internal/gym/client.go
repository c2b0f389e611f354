package gym

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/court-scheduler/internal/internaltypes"
	"github.com/example/court-scheduler/internal/ratelimit"
)

const (
	DefaultBaseURL = "http://gym.dazuiwl.cn"
	DefaultSportID = 51

	userAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 18_5 like Mac OS X) AppleWebKit/605.1.15 " +
		"(KHTML, like Gecko) Mobile/15E148 MicroMessenger/8.0.59(0x18003b2c) NetType/WIFI Language/zh_CN"

	msgOverbooked  = "该项目超过每天可预约次数"
	msgOccupied    = "场地该时间段预约中"
	msgArranged    = "场地该时间段临时有安排"
	msgRateLimited = "请不要频繁提交订单"
)

var (
	// ErrOccupied means somebody else holds the court at that time.
	ErrOccupied = errors.New("occupied")
	// ErrOverbooked means the account reached the service's daily booking cap.
	ErrOverbooked = errors.New("overbooked")
)

// RequestError is a well-formed response whose envelope code is not success.
type RequestError struct {
	Code int
	Msg  string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request failed with code %d: %s", e.Code, e.Msg)
}

func (e *RequestError) Is(target error) bool {
	switch target {
	case ErrOccupied:
		return e.Msg == msgOccupied || e.Msg == msgArranged
	case ErrOverbooked:
		return e.Msg == msgOverbooked
	}
	return false
}

// Client talks to the gym booking service the way its WeChat H5 page does.
// Every request waits on the shared dispenser first.
type Client struct {
	hc      *http.Client
	base    string
	sport   int
	token   string
	openID  string
	limiter *ratelimit.Dispenser
	log     *log.Entry
	now     func() time.Time

	mu      sync.RWMutex
	catalog *catalog
}

type Options struct {
	BaseURL string
	SportID int
	Token   string
	OpenID  string
	Timeout time.Duration

	// Limiter spaces requests; nil means no spacing.
	Limiter *ratelimit.Dispenser
	Logger  *log.Logger
	Now     func() time.Time
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.SportID == 0 {
		opts.SportID = DefaultSportID
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Client{
		hc:      &http.Client{Timeout: opts.Timeout},
		base:    strings.TrimRight(opts.BaseURL, "/"),
		sport:   opts.SportID,
		token:   opts.Token,
		openID:  opts.OpenID,
		limiter: opts.Limiter,
		log:     opts.Logger.WithField("component", "gym"),
		now:     opts.Now,
	}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Time json.RawMessage `json:"time"`
	Data json.RawMessage `json:"data"`
}

// PaymentURL is where the user completes payment for a created order.
func (c *Client) PaymentURL(tradeNumber string) string {
	return c.base + "/h5/#/pages/myBookingDetails/myBookingDetails?id=" + tradeNumber
}

// do sends one request and classifies the answer. The returned error is one of: an
// ErrAuth wrap, a transient wrap, a *internaltypes.RateLimitError or a *RequestError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, form url.Values) (*envelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("token", c.token)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", c.base)
	req.Header.Set("Referer", c.base+"/h5/")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9")
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, internaltypes.Transient(fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer res.Body.Close()
	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, internaltypes.Transient(fmt.Errorf("read %s: %w", path, err))
	}

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: status %d: %w", method, path, res.StatusCode, internaltypes.ErrAuth)
	case res.StatusCode == http.StatusTooManyRequests:
		c.penalize()
		return nil, &internaltypes.RateLimitError{Msg: fmt.Sprintf("status %d", res.StatusCode)}
	case res.StatusCode >= 500:
		return nil, internaltypes.Transient(fmt.Errorf("%s %s: server returned status %d", method, path, res.StatusCode))
	case res.StatusCode != http.StatusOK:
		return nil, &RequestError{Code: res.StatusCode, Msg: http.StatusText(res.StatusCode)}
	}

	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		// an overloaded service answers 200 with an html error page
		return nil, internaltypes.Transient(fmt.Errorf("decode %s: %w", path, err))
	}
	switch {
	case env.Code == 1:
		if c.limiter != nil {
			c.limiter.Relax()
		}
		return &env, nil
	case env.Code == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %s: %w", method, path, env.Msg, internaltypes.ErrAuth)
	case env.Msg == msgRateLimited:
		c.penalize()
		return nil, &internaltypes.RateLimitError{Msg: env.Msg}
	default:
		return nil, &RequestError{Code: env.Code, Msg: env.Msg}
	}
}

func (c *Client) penalize() {
	if c.limiter == nil {
		return
	}
	c.limiter.Penalize()
	c.log.WithField("spacing", c.limiter.Spacing()).Warn("rate limited, widening request spacing")
}

func (c *Client) sportPath(format string) string {
	return fmt.Sprintf(format, c.sport)
}
