// Package controlapi talks to the local browser-profile control API.
// Profiles are addressed by serial number; starting a profile returns
// the remote debugging endpoints of the launched browser.
package controlapi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Endpoint describes a started browser profile.
type Endpoint struct {
	// WebSocket is the DevTools websocket address (puppeteer style).
	WebSocket string
	// Webdriver is the path to the matching chromedriver binary.
	Webdriver string
}

// Client calls the profile control API over HTTP.
type Client struct {
	http *resty.Client
}

type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Status string `json:"status"`
		WS     struct {
			Selenium  string `json:"selenium"`
			Puppeteer string `json:"puppeteer"`
		} `json:"ws"`
		Webdriver string `json:"webdriver"`
	} `json:"data"`
}

// New creates a client for the control API at base, e.g.
// "http://local.adspower.net:50325".
func New(base string) *Client {
	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(5 * time.Second)
	return &Client{http: httpClient}
}

// Active reports whether the profile's browser is currently running.
func (c *Client) Active(ctx context.Context, serial string) (bool, error) {
	resp, err := c.get(ctx, "/api/v1/browser/active", serial, nil)
	if err != nil {
		return false, fmt.Errorf("query profile %s: %w", serial, err)
	}
	return resp.Data.Status == "Active", nil
}

// Start launches the profile's browser and returns its debugging
// endpoints. Accounts that only farm run headless; accounts still
// working through quests need a visible window with popups allowed.
func (c *Client) Start(ctx context.Context, serial string, headless bool) (*Endpoint, error) {
	params := map[string]string{}
	if headless {
		params["headless"] = "1"
	} else {
		params["headless"] = "0"
		launchArgs, _ := json.Marshal([]string{"--disable-popup-blocking"})
		params["launch_args"] = string(launchArgs)
	}

	resp, err := c.get(ctx, "/api/v1/browser/start", serial, params)
	if err != nil {
		return nil, fmt.Errorf("start profile %s: %w", serial, err)
	}
	if resp.Data.WS.Puppeteer == "" {
		return nil, fmt.Errorf("start profile %s: no websocket endpoint in response", serial)
	}
	return &Endpoint{
		WebSocket: resp.Data.WS.Puppeteer,
		Webdriver: resp.Data.Webdriver,
	}, nil
}

// Stop shuts down the profile's browser.
func (c *Client) Stop(ctx context.Context, serial string) error {
	if _, err := c.get(ctx, "/api/v1/browser/stop", serial, nil); err != nil {
		return fmt.Errorf("stop profile %s: %w", serial, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path, serial string, params map[string]string) (*apiResponse, error) {
	var body apiResponse
	req := c.http.R().
		SetContext(ctx).
		SetQueryParam("serial_number", serial).
		SetResult(&body)
	for k, v := range params {
		req.SetQueryParam(k, v)
	}

	resp, err := req.Get(path)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("control api: http %d", resp.StatusCode())
	}
	if body.Code != 0 {
		return nil, fmt.Errorf("control api: %s (code %d)", body.Msg, body.Code)
	}
	return &body, nil
}
