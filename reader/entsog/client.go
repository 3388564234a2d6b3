package entsog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"gasflow/logger"
	"gasflow/reader"
)

// ErrNoMatchingData means the query was valid but selected nothing.
var ErrNoMatchingData = errors.New("entsog: no matching data")

const noDataMessage = "no data found"

// Client talks to the ENTSOG transparency platform API.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Log
}

// NewClient returns a client for baseURL (e.g.
// https://transparency.entsog.eu/api/v1). Calls wait on limiter when it is
// not nil.
func NewClient(baseURL string, httpClient *http.Client, limiter *rate.Limiter) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		limiter: limiter,
		log:     logger.GetLogger(),
	}
}

// OperatorPointDirections lists every operator point direction.
func (c *Client) OperatorPointDirections(ctx context.Context) ([]PointDirection, error) {
	q := url.Values{}
	q.Set("limit", "-1")

	var resp pointDirectionsResponse
	if err := c.get(ctx, "operatorpointdirections", q, &resp); err != nil {
		return nil, err
	}
	return resp.PointDirections, nil
}

// OperationalData returns the daily values of the indicators for the given
// point directions between from and to, both days inclusive. An empty
// selection is reported as ErrNoMatchingData.
func (c *Client) OperationalData(ctx context.Context, from, to time.Time, indicators []Indicator, keys []string) ([]OperationalData, error) {
	names := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		name, err := ind.APIName()
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	q := url.Values{}
	q.Set("from", from.UTC().Format("2006-01-02"))
	q.Set("to", to.UTC().Format("2006-01-02"))
	q.Set("indicator", strings.Join(names, ","))
	q.Set("pointDirection", strings.Join(keys, ","))
	q.Set("periodType", "day")
	q.Set("timezone", "UTC")
	q.Set("limit", "-1")

	var resp operationalResponse
	if err := c.get(ctx, "operationaldatas", q, &resp); err != nil {
		return nil, err
	}
	rows := resp.rows()
	if len(rows) == 0 {
		return nil, ErrNoMatchingData
	}
	return rows, nil
}

func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	u := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.log.WithComponent("entsog_client").WithFields(logger.Fields{
		"endpoint":    endpoint,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("entsog request")

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s: %w", endpoint, err)
	}

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound || isNoData(body) {
			return ErrNoMatchingData
		}
		msg := string(body)
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return &reader.StatusError{URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(msg)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		if isNoData(body) {
			return ErrNoMatchingData
		}
		return fmt.Errorf("decode %s: %w", endpoint, err)
	}
	return nil
}

func isNoData(body []byte) bool {
	var m struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &m) != nil {
		return false
	}
	return strings.Contains(strings.ToLower(m.Message), noDataMessage)
}
