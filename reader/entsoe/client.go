package entsoe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/time/rate"

	"gasflow/internal/retry"
	"gasflow/logger"
	"gasflow/models"
	"gasflow/reader"
)

// ErrNoMatchingData means the platform has nothing for the query.
var ErrNoMatchingData = errors.New("entsoe: no matching data")

const periodLayout = "200601021504"

// Client queries the ENTSO-E transparency platform RESTful API. The security
// token is read from the environment on every call.
type Client struct {
	baseURL   string
	apiKeyEnv string
	http      *http.Client
	limiter   *rate.Limiter
	log       *logger.Log
}

func NewClient(baseURL, apiKeyEnv string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if apiKeyEnv == "" {
		apiKeyEnv = "ENTSOE_API_KEY"
	}
	return &Client{
		baseURL:   baseURL,
		apiKeyEnv: apiKeyEnv,
		http:      httpClient,
		limiter:   limiter,
		log:       logger.GetLogger(),
	}
}

// DayAheadPrices returns the day-ahead prices (A44) of a bidding zone.
func (c *Client) DayAheadPrices(ctx context.Context, zone string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A44")
	q.Set("in_Domain", zone)
	q.Set("out_Domain", zone)
	return c.query(ctx, q, w, 0)
}

// ActualLoad returns the realised total load (A65/A16) of a bidding zone.
func (c *Client) ActualLoad(ctx context.Context, zone string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A65")
	q.Set("processType", "A16")
	q.Set("outBiddingZone_Domain", zone)
	return c.query(ctx, q, w, 0)
}

// Load forecast horizons (processType of an A65 query).
const (
	ProcessDayAhead   = "A01"
	ProcessWeekAhead  = "A31"
	ProcessMonthAhead = "A32"
	ProcessYearAhead  = "A33"
	ProcessIntraday   = "A40"
)

// LoadForecast returns the total load forecast (A65) for the horizon. The
// week, month and year ahead forecasts carry minimum (A60) and maximum (A61)
// series with daily or weekly points, which are moved to the nearest UTC
// midnight.
func (c *Client) LoadForecast(ctx context.Context, zone, process string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A65")
	q.Set("processType", process)
	q.Set("outBiddingZone_Domain", zone)
	if process == ProcessDayAhead {
		return c.query(ctx, q, w, 0)
	}
	return c.query(ctx, q, w, 24*time.Hour)
}

// GenerationForecast returns the day-ahead scheduled net generation (A71).
func (c *Client) GenerationForecast(ctx context.Context, zone string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A71")
	q.Set("processType", ProcessDayAhead)
	q.Set("in_Domain", zone)
	return c.query(ctx, q, w, 0)
}

// WindSolarForecast returns the wind and solar generation forecast (A69) for
// the day-ahead or intraday horizon, one series per production type.
func (c *Client) WindSolarForecast(ctx context.Context, zone, process string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A69")
	q.Set("processType", process)
	q.Set("in_Domain", zone)
	return c.query(ctx, q, w, 0)
}

// ActualGenerationPerType returns the realised generation (A75) per
// production type.
func (c *Client) ActualGenerationPerType(ctx context.Context, zone string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A75")
	q.Set("processType", "A16")
	q.Set("in_Domain", zone)
	return c.query(ctx, q, w, 0)
}

// HydroReservoirStorage returns the weekly filling of water reservoirs and
// hydro storage plants (A72), moved to the nearest UTC midnight.
func (c *Client) HydroReservoirStorage(ctx context.Context, zone string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A72")
	q.Set("processType", "A16")
	q.Set("in_Domain", zone)
	return c.query(ctx, q, w, 24*time.Hour)
}

// CrossborderFlows returns the physical flows (A11) from one zone to another.
func (c *Client) CrossborderFlows(ctx context.Context, from, to string, w models.PartitionWindow) ([]Point, error) {
	q := url.Values{}
	q.Set("documentType", "A11")
	q.Set("out_Domain", from)
	q.Set("in_Domain", to)
	return c.query(ctx, q, w, 0)
}

// query fetches and parses one document. With round > 0 timestamps are
// rounded to that step before the points outside the window are dropped.
func (c *Client) query(ctx context.Context, q url.Values, w models.PartitionWindow, round time.Duration) ([]Point, error) {
	token := os.Getenv(c.apiKeyEnv)
	if token == "" {
		return nil, retry.Permanent(fmt.Errorf("%s is not set", c.apiKeyEnv))
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	q.Set("periodStart", w.Start.UTC().Format(periodLayout))
	q.Set("periodEnd", w.End.UTC().Format(periodLayout))
	q.Set("securityToken", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		// the URL carries the token
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return nil, fmt.Errorf("GET %s: %w", q.Get("documentType"), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	c.log.WithComponent("entsoe_client").WithFields(logger.Fields{
		"document_type": q.Get("documentType"),
		"status":        resp.StatusCode,
		"bytes":         len(body),
		"duration_ms":   time.Since(start).Milliseconds(),
	}).Debug("entsoe request")

	points, perr := parseDocument(body)
	if resp.StatusCode != http.StatusOK {
		if errors.Is(perr, ErrNoMatchingData) {
			return nil, ErrNoMatchingData
		}
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return nil, &reader.StatusError{URL: c.baseURL, StatusCode: resp.StatusCode, Body: msg}
	}
	if perr != nil {
		return nil, perr
	}

	out := points[:0]
	for _, p := range points {
		if round > 0 {
			p.Timestamp = p.Timestamp.Round(round)
		}
		if w.Contains(p.Timestamp) {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMatchingData
	}
	return out, nil
}
