package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/internaltypes"
)

var sctpKeyRe = regexp.MustCompile(`^sctp(\d+)t`)

// Endpoint resolves the ServerChan push URL for a send key.
func Endpoint(sendKey string) (string, error) {
	if strings.HasPrefix(sendKey, "sctp") {
		m := sctpKeyRe.FindStringSubmatch(sendKey)
		if m == nil {
			return "", internaltypes.NewConfigError("send-key", "invalid sctp send key format")
		}
		return fmt.Sprintf("https://%s.push.ft07.com/send/%s.send", m[1], sendKey), nil
	}
	return fmt.Sprintf("https://sctapi.ftqq.com/%s.send", sendKey), nil
}

// New picks the notifier for a send key: ServerChan when one is set, log-only otherwise.
func New(sendKey string, logger *log.Logger) (court.Notifier, error) {
	if sendKey == "" {
		return &LogOnly{log: logger.WithField("component", "notify")}, nil
	}
	endpoint, err := Endpoint(sendKey)
	if err != nil {
		return nil, err
	}
	return NewServerChan(endpoint, logger), nil
}

// ServerChan pushes messages to a phone through the ServerChan service.
type ServerChan struct {
	endpoint string
	hc       *http.Client
	log      *log.Entry
}

func NewServerChan(endpoint string, logger *log.Logger) *ServerChan {
	return &ServerChan{
		endpoint: endpoint,
		hc:       &http.Client{Timeout: 10 * time.Second},
		log:      logger.WithField("component", "notify"),
	}
}

type message struct {
	Title string `json:"title"`
	Desp  string `json:"desp"`
}

func (s *ServerChan) Notify(ctx context.Context, title, body string) error {
	payload, err := json.Marshal(message{Title: title, Desp: body})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json;charset=utf-8")

	res, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	defer res.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	if res.StatusCode >= 300 {
		return fmt.Errorf("push notification: status %d: %s", res.StatusCode, bytes.TrimSpace(b))
	}

	var ack struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &ack); err == nil && ack.Code != 0 {
		return fmt.Errorf("push notification: code %d: %s", ack.Code, ack.Message)
	}
	s.log.WithField("title", title).Debug("notification delivered")
	return nil
}

// LogOnly writes notifications to the log.
type LogOnly struct {
	log *log.Entry
}

func (l *LogOnly) Notify(_ context.Context, title, body string) error {
	l.log.WithField("title", title).Info(body)
	return nil
}
