package gym

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/example/court-scheduler/internal/court"
	"github.com/example/court-scheduler/internal/internaltypes"
)

var tradeNumberRe = regexp.MustCompile(`name='tenantTradeNumber' value='([^']+)'`)

// Order is one of the account's appointments.
type Order struct {
	ID     string  `json:"orderid"`
	Status string  `json:"status"`
	Scenes []Scene `json:"scene"`
}

// Scene is the court time an order holds on one day: field id → hour ids.
type Scene struct {
	Day    string           `json:"day"`
	Fields map[string][]int `json:"fields"`
}

// Submit places an order for slot. Rejections by the service come back as a Rejected
// result with a nil error; errors are auth, transient or rate-limit failures.
func (c *Client) Submit(ctx context.Context, s court.Slot) (court.Result, error) {
	day, err := time.ParseInLocation(court.DateLayout, s.Date, time.Local)
	if err != nil {
		return court.Result{}, fmt.Errorf("slot date %q: %w", s.Date, err)
	}
	cat, err := c.tables(ctx)
	if err != nil {
		return court.Result{}, err
	}
	prices, err := c.prices(ctx, day)
	if err != nil {
		return court.Result{}, err
	}
	money := 0
	for _, h := range s.Hours() {
		hour, ok := cat.byHour[h]
		if !ok {
			return court.RejectedBy(fmt.Sprintf("unknown hour %d", h)), nil
		}
		money += prices[hour.DayType]
	}

	scene, err := json.Marshal([]Scene{{Day: s.Date, Fields: map[string][]int{s.FieldID: s.Hours()}}})
	if err != nil {
		return court.Result{}, err
	}
	form := url.Values{
		"orderid":         {""},
		"card_id":         {""},
		"sport_events_id": {strconv.Itoa(c.sport)},
		"money":           {strconv.Itoa(money)},
		"ordertype":       {"makeappointment"},
		"paytype":         {"bitpay"},
		"scene":           {string(scene)},
		"openid":          {c.openID},
	}

	env, err := c.do(ctx, http.MethodPost, "/api/order/submit", nil, form)
	if err != nil {
		return c.submitFailure(ctx, s, err)
	}
	var page string
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return court.Result{}, internaltypes.Transient(fmt.Errorf("decode order response: %w", err))
	}
	m := tradeNumberRe.FindStringSubmatch(page)
	if m == nil {
		// the order may exist; the retry will hit the daily cap and recover it
		return court.Result{}, internaltypes.Transient(errors.New("could not extract trade number from order response"))
	}
	return court.Succeeded(c.PaymentURL(m[1])), nil
}

func (c *Client) submitFailure(ctx context.Context, s court.Slot, err error) (court.Result, error) {
	var rerr *RequestError
	if !errors.As(err, &rerr) {
		return court.Result{}, err
	}
	switch {
	case errors.Is(rerr, ErrOccupied):
		return court.RejectedBy("occupied"), nil
	case errors.Is(rerr, ErrOverbooked):
		return c.recoverLatest(ctx, s)
	default:
		return court.RejectedBy(rerr.Msg), nil
	}
}

// recoverLatest handles the daily-cap answer: an earlier try of ours may have created the
// order without us seeing the response, so the newest unpaid order is taken as ours.
func (c *Client) recoverLatest(ctx context.Context, s court.Slot) (court.Result, error) {
	logger := c.log.WithField("slot", s.String())
	orders, err := c.Orders(ctx, "created", 1)
	if err != nil {
		if internaltypes.IsAuth(err) {
			return court.Result{}, err
		}
		logger.WithError(err).Warn("could not list created orders after overbooked answer")
		return court.RejectedBy("overbooked"), nil
	}
	if len(orders) == 0 {
		logger.Warn("overbooked and no created order found")
		return court.RejectedBy("overbooked"), nil
	}
	logger.WithField("order", orders[0].ID).Info("recovered latest created order")
	return court.Succeeded(c.PaymentURL(orders[0].ID)), nil
}

// prices returns the per-hour price by day type. When the service cannot answer, the
// built-in weekday/weekend table is used.
func (c *Client) prices(ctx context.Context, day time.Time) (map[string]int, error) {
	q := url.Values{
		"week": {strconv.Itoa(c.dayOffset(day))},
		"day":  {day.Format(court.DateLayout)},
	}
	env, err := c.do(ctx, http.MethodGet, c.sportPath("/api/sport_events/price/id/%d"), q, nil)
	if err == nil {
		var data map[string]struct {
			Price flexInt `json:"price"`
		}
		if err = json.Unmarshal(env.Data, &data); err == nil && len(data) > 0 {
			out := make(map[string]int, len(data))
			for k, v := range data {
				out[k] = int(v.Price)
			}
			return out, nil
		}
	}
	if internaltypes.IsAuth(err) {
		return nil, err
	}
	weekend := day.Weekday() == time.Saturday || day.Weekday() == time.Sunday
	c.log.WithError(err).Warn("prices unavailable, falling back to built-in table")
	return fallbackPrices[weekend], nil
}

func (c *Client) dayOffset(day time.Time) int {
	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, day.Location())
	d := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return int(math.Round(d.Sub(today).Hours() / 24))
}

// Orders lists the account's appointments with the given status (created, paid, expired,
// finish), newest first.
func (c *Client) Orders(ctx context.Context, status string, limit int) ([]Order, error) {
	q := url.Values{
		"ordertype": {"makeappointment"},
		"status":    {status},
		"orderid":   {""},
		"page":      {"1"},
		"limit":     {strconv.Itoa(limit)},
	}
	env, err := c.do(ctx, http.MethodGet, "/api/order/index", q, nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		List []struct {
			OrderID string `json:"orderid"`
			Status  string `json:"status"`
			Config  struct {
				Scene []Scene `json:"scene"`
			} `json:"config"`
		} `json:"list"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}
	out := make([]Order, 0, len(data.List))
	for _, o := range data.List {
		out = append(out, Order{ID: o.OrderID, Status: o.Status, Scenes: o.Config.Scene})
	}
	return out, nil
}

// Cancel cancels an unpaid order.
func (c *Client) Cancel(ctx context.Context, orderID string) error {
	_, err := c.do(ctx, http.MethodPut, "/api/order/cancel/orderid/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}
