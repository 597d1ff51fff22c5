// Package wyze provides the cloud-camera API boundary and the concrete
// stream implementation the supervisor drives.
package wyze

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/terminusxx/docker-wyze-bridge/internal/camera"
)

const (
	authURL    = "https://auth-prod.api.wyze.com/api/user/login"
	apiBaseURL = "https://api.wyzecam.com"

	appVer  = "wyze_developer_api"
	phoneSC = "wyze_developer_api"
	phoneID = "wyze_developer_api"
	appName = "wyze_developer_api"
)

// Client is the Wyze cloud API client.
type Client struct {
	email    string
	password string
	apiKey   string
	keyID    string
	imgPath  string

	authURL string
	baseURL string

	accessToken  string
	refreshToken string
	tokenExpiry  time.Time
	userID       string

	devices map[string]*camera.Device // keyed by stream URI

	http   *http.Client
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewClient creates a new Wyze API client. Downloaded thumbnails land
// in imgPath.
func NewClient(email, password, apiKey, keyID, imgPath string) *Client {
	return &Client{
		email:    email,
		password: password,
		apiKey:   apiKey,
		keyID:    keyID,
		imgPath:  imgPath,
		authURL:  authURL,
		baseURL:  apiBaseURL,
		devices:  make(map[string]*camera.Device),
		http:     &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default().With("component", "wyze-api"),
	}
}

// Login authenticates with the Wyze cloud.
func (c *Client) Login(ctx context.Context) error {
	// The auth endpoint expects the password hashed three times over.
	passwordHash := c.password
	for range 3 {
		sum := md5.Sum([]byte(passwordHash))
		passwordHash = hex.EncodeToString(sum[:])
	}

	body, err := json.Marshal(map[string]any{
		"email":    c.email,
		"password": passwordHash,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Keyid", c.keyID)
	req.Header.Set("Apikey", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var result struct {
		AccessToken  string   `json:"access_token"`
		RefreshToken string   `json:"refresh_token"`
		UserID       string   `json:"user_id"`
		ExpiresIn    int      `json:"expires_in"`
		MfaOptions   []string `json:"mfa_options"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}

	if len(result.MfaOptions) > 0 {
		return fmt.Errorf("MFA is required for this account")
	}
	if result.AccessToken == "" {
		return fmt.Errorf("login failed: no access token returned")
	}

	c.mu.Lock()
	c.accessToken = result.AccessToken
	c.refreshToken = result.RefreshToken
	c.userID = result.UserID
	if result.ExpiresIn > 0 {
		c.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn-300) * time.Second)
	} else {
		c.tokenExpiry = time.Now().Add(23 * time.Hour)
	}
	c.mu.Unlock()

	return nil
}

// ensureToken makes sure we have a valid token.
func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	needLogin := c.accessToken == "" || time.Now().After(c.tokenExpiry)
	c.mu.RUnlock()

	if needLogin {
		return c.Login(ctx)
	}
	return nil
}

func (c *Client) apiParams() url.Values {
	c.mu.RLock()
	token := c.accessToken
	c.mu.RUnlock()

	params := url.Values{}
	params.Set("sv", "9f275790cab94a72bd206c8876429f3c")
	params.Set("sc", phoneSC)
	params.Set("app_ver", appVer)
	params.Set("ts", fmt.Sprintf("%d", time.Now().UnixMilli()))
	params.Set("access_token", token)
	params.Set("phone_id", phoneID)
	params.Set("app_name", appName)
	return params
}

// GetCameraList retrieves the account's cameras as device descriptors.
func (c *Client) GetCameraList(ctx context.Context) ([]*camera.Device, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "/app/v2/home_page/get_object_list?" + c.apiParams().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			DeviceList []struct {
				MAC          string `json:"mac"`
				Nickname     string `json:"nickname"`
				ProductModel string `json:"product_model"`
				ProductType  string `json:"product_type"`
				FirmwareVer  string `json:"firmware_ver"`
				DeviceParams struct {
					IP           string `json:"ip"`
					ThumbnailURL string `json:"camera_thumbnails_url"`
				} `json:"device_params"`
			} `json:"device_list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse device list: %w", err)
	}
	if result.Code != "1" {
		return nil, fmt.Errorf("device list request failed: %s", result.Msg)
	}

	var devices []*camera.Device
	for _, d := range result.Data.DeviceList {
		if d.ProductType != "Camera" {
			continue
		}
		dev := &camera.Device{
			MAC:          d.MAC,
			Nickname:     d.Nickname,
			NameURI:      camera.URIName(d.Nickname),
			ProductModel: d.ProductModel,
			IP:           d.DeviceParams.IP,
			FirmwareVer:  d.FirmwareVer,
			ThumbnailURL: d.DeviceParams.ThumbnailURL,
		}
		devices = append(devices, dev)
	}

	c.mu.Lock()
	for _, dev := range devices {
		for _, v := range camera.Variants(dev) {
			c.devices[v.URI] = v.Device
		}
	}
	c.mu.Unlock()

	c.logger.Info("Fetched camera list", "cameras", len(devices))
	return devices, nil
}

// Device returns the cached device descriptor for a stream URI.
func (c *Client) Device(uri string) *camera.Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.devices[uri]
}

// SaveThumbnail downloads the cloud thumbnail for a stream into the
// image directory. The hint, when not empty, overrides the cached
// thumbnail URL.
func (c *Client) SaveThumbnail(uri, hint string) error {
	src := hint
	if src == "" {
		if dev := c.Device(uri); dev != nil {
			src = dev.ThumbnailURL
		}
	}
	if src == "" {
		return fmt.Errorf("no thumbnail available for %s", uri)
	}

	resp, err := c.http.Get(src)
	if err != nil {
		return fmt.Errorf("thumbnail download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("thumbnail download returned %s", resp.Status)
	}

	out := filepath.Join(c.imgPath, uri+".jpg")
	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, io.LimitReader(resp.Body, 10*1024*1024)); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, out)
}

// CloudEvent is one motion/sound event reported by the cloud.
type CloudEvent struct {
	EventID   string
	DeviceMAC string
	Kind      string
	Timestamp time.Time
}

// GetEventList returns cloud events newer than since for the given MACs.
func (c *Client) GetEventList(ctx context.Context, macs []string, since time.Time) ([]CloudEvent, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(map[string]any{
		"device_mac_list": macs,
		"begin_time":      since.UnixMilli(),
		"end_time":        time.Now().UnixMilli(),
		"order_by":        2,
		"count":           20,
	})
	if err != nil {
		return nil, err
	}

	reqURL := c.baseURL + "/app/v2/device/get_event_list?" + c.apiParams().Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			EventList []struct {
				EventID   string `json:"event_id"`
				DeviceMAC string `json:"device_mac"`
				EventType int    `json:"event_type"`
				EventTS   int64  `json:"event_ts"`
			} `json:"event_list"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse event list: %w", err)
	}
	if result.Code != "1" {
		return nil, fmt.Errorf("event list request failed: %s", result.Msg)
	}

	events := make([]CloudEvent, 0, len(result.Data.EventList))
	for _, e := range result.Data.EventList {
		kind := "motion"
		if e.EventType == 2 {
			kind = "sound"
		}
		events = append(events, CloudEvent{
			EventID:   e.EventID,
			DeviceMAC: strings.ToUpper(e.DeviceMAC),
			Kind:      kind,
			Timestamp: time.UnixMilli(e.EventTS),
		})
	}
	return events, nil
}
