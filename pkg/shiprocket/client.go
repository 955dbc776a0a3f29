package shiprocket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
	pkgerrors "github.com/deepanshucode1-cmd/trisikha-backend/pkg/errors"
	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/logger"
)

const (
	defaultBaseURL              = "https://apiv2.shiprocket.in"
	apiPrefix                   = "/v1/external"
	responseBodyReadLimit int64 = 4096

	// Shiprocket tokens are valid for 10 days; refresh a day early.
	tokenLifetime = 9 * 24 * time.Hour
)

var (
	errEmailRequired    = errors.New("shiprocket email is required")
	errPasswordRequired = errors.New("shiprocket password is required")
)

// Client wraps the Shiprocket external API with bearer-token caching and
// request throttling. Shiprocket has no Go SDK, so calls go over plain HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	email      string
	password   string
	limiter    *rate.Limiter
	logger     *logger.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// NewClient builds the Shiprocket client from configuration.
func NewClient(cfg config.ShiprocketConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	email := strings.TrimSpace(cfg.Email)
	if email == "" {
		return nil, errEmailRequired
	}
	password := strings.TrimSpace(cfg.Password)
	if password == "" {
		return nil, errPasswordRequired
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = 5
	}

	client := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		email:      email,
		password:   password,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logg,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ShipmentItem is one line of a shipment order.
type ShipmentItem struct {
	Name         string `json:"name"`
	SKU          string `json:"sku"`
	Units        int    `json:"units"`
	SellingPrice int64  `json:"selling_price"`
}

// ShipmentAddress is the consignee (or return origin) address.
type ShipmentAddress struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"address"`
	Line2   string `json:"address_2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pin_code"`
	Country string `json:"country"`
	Email   string `json:"email,omitempty"`
}

// CreateShipmentParams describes a forward shipment order.
type CreateShipmentParams struct {
	OrderRef       string
	OrderDate      time.Time
	PickupLocation string
	Consignee      ShipmentAddress
	Items          []ShipmentItem
	SubTotalPaise  int64
	WeightKg       float64
}

// Shipment is the gateway-side order/shipment pair created for one order.
type Shipment struct {
	OrderID    int64
	ShipmentID int64
	Status     string
	AWB        string
	CourierID  int64
}

// CourierOption is one serviceable courier with its quoted rate.
type CourierOption struct {
	CourierID   int64
	CourierName string
	Rate        float64
	ETDDays     int
}

// TrackingEvent is one scan from the carrier's tracking feed.
type TrackingEvent struct {
	Activity string
	Location string
	Date     string
}

// Login fetches and caches a bearer token. Safe for concurrent use; callers
// normally never invoke it directly because every request refreshes lazily.
func (c *Client) Login(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"email": c.email, "password": c.password}
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login", "", body, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.Token) == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shiprocket login returned empty token")
	}
	c.token = resp.Token
	c.tokenExpiry = time.Now().Add(tokenLifetime)
	if c.logger != nil {
		c.logger.Info(ctx, "shiprocket token refreshed")
	}
	return c.token, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()
}

// CreateShipment registers an adhoc order with the aggregator and assigns an
// AWB in the same call window.
func (c *Client) CreateShipment(ctx context.Context, params CreateShipmentParams) (*Shipment, error) {
	if len(params.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment requires at least one item")
	}
	orderDate := params.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now()
	}
	payload := map[string]any{
		"order_id":          params.OrderRef,
		"order_date":        orderDate.Format("2006-01-02 15:04"),
		"pickup_location":   params.PickupLocation,
		"billing_customer_name": params.Consignee.Name,
		"billing_last_name":     "",
		"billing_address":       params.Consignee.Line1,
		"billing_address_2":     params.Consignee.Line2,
		"billing_city":          params.Consignee.City,
		"billing_pincode":       params.Consignee.Pincode,
		"billing_state":         params.Consignee.State,
		"billing_country":       params.Consignee.Country,
		"billing_email":         params.Consignee.Email,
		"billing_phone":         params.Consignee.Phone,
		"shipping_is_billing":   true,
		"order_items":           params.Items,
		"payment_method":        "Prepaid",
		"sub_total":             float64(params.SubTotalPaise) / 100,
		"length":                10,
		"breadth":               10,
		"height":                10,
		"weight":                params.WeightKg,
	}

	var resp struct {
		OrderID    int64  `json:"order_id"`
		ShipmentID int64  `json:"shipment_id"`
		Status     string `json:"status"`
	}
	if err := c.authorizedJSON(ctx, http.MethodPost, "/orders/create/adhoc", payload, &resp); err != nil {
		return nil, err
	}

	shipment := &Shipment{
		OrderID:    resp.OrderID,
		ShipmentID: resp.ShipmentID,
		Status:     resp.Status,
	}

	var awbResp struct {
		Response struct {
			Data struct {
				AWBCode   string `json:"awb_code"`
				CourierID int64  `json:"courier_company_id"`
			} `json:"data"`
		} `json:"response"`
	}
	awbPayload := map[string]any{"shipment_id": resp.ShipmentID}
	if err := c.authorizedJSON(ctx, http.MethodPost, "/courier/assign/awb", awbPayload, &awbResp); err != nil {
		return nil, err
	}
	shipment.AWB = awbResp.Response.Data.AWBCode
	shipment.CourierID = awbResp.Response.Data.CourierID
	return shipment, nil
}

// CreateReturnShipment registers a reverse pickup from the customer back to
// the warehouse and returns the return-shipment ids and pickup AWB.
func (c *Client) CreateReturnShipment(ctx context.Context, params CreateShipmentParams) (*Shipment, error) {
	if len(params.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "return shipment requires at least one item")
	}
	orderDate := params.OrderDate
	if orderDate.IsZero() {
		orderDate = time.Now()
	}
	payload := map[string]any{
		"order_id":   params.OrderRef,
		"order_date": orderDate.Format("2006-01-02 15:04"),
		"pickup_customer_name": params.Consignee.Name,
		"pickup_phone":         params.Consignee.Phone,
		"pickup_address":       params.Consignee.Line1,
		"pickup_address_2":     params.Consignee.Line2,
		"pickup_city":          params.Consignee.City,
		"pickup_state":         params.Consignee.State,
		"pickup_pincode":       params.Consignee.Pincode,
		"pickup_country":       params.Consignee.Country,
		"shipping_customer_name": params.PickupLocation,
		"order_items":            params.Items,
		"payment_method":         "Prepaid",
		"sub_total":              float64(params.SubTotalPaise) / 100,
		"length":                 10,
		"breadth":                10,
		"height":                 10,
		"weight":                 params.WeightKg,
	}

	var resp struct {
		OrderID    int64  `json:"order_id"`
		ShipmentID int64  `json:"shipment_id"`
		Status     string `json:"status"`
	}
	if err := c.authorizedJSON(ctx, http.MethodPost, "/orders/create/return", payload, &resp); err != nil {
		return nil, err
	}

	shipment := &Shipment{
		OrderID:    resp.OrderID,
		ShipmentID: resp.ShipmentID,
		Status:     resp.Status,
	}

	var awbResp struct {
		Response struct {
			Data struct {
				AWBCode string `json:"awb_code"`
			} `json:"data"`
		} `json:"response"`
	}
	awbPayload := map[string]any{"shipment_id": resp.ShipmentID, "is_return": 1}
	if err := c.authorizedJSON(ctx, http.MethodPost, "/courier/assign/awb", awbPayload, &awbResp); err != nil {
		return nil, err
	}
	shipment.AWB = awbResp.Response.Data.AWBCode
	return shipment, nil
}

// CancelShipment cancels the gateway order backing a shipment.
func (c *Client) CancelShipment(ctx context.Context, gatewayOrderID int64) error {
	payload := map[string]any{"ids": []int64{gatewayOrderID}}
	var resp struct {
		Message string `json:"message"`
	}
	return c.authorizedJSON(ctx, http.MethodPost, "/orders/cancel", payload, &resp)
}

// GenerateLabel produces a printable label for the shipment.
func (c *Client) GenerateLabel(ctx context.Context, shipmentID int64) (string, error) {
	payload := map[string]any{"shipment_id": []int64{shipmentID}}
	var resp struct {
		LabelCreated int    `json:"label_created"`
		LabelURL     string `json:"label_url"`
	}
	if err := c.authorizedJSON(ctx, http.MethodPost, "/courier/generate/label", payload, &resp); err != nil {
		return "", err
	}
	if resp.LabelURL == "" {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "shiprocket returned no label url")
	}
	return resp.LabelURL, nil
}

// GenerateManifest groups shipments into one courier-handoff manifest and
// returns its URL.
func (c *Client) GenerateManifest(ctx context.Context, shipmentIDs []int64) (string, error) {
	if len(shipmentIDs) == 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "manifest requires at least one shipment id")
	}
	payload := map[string]any{"shipment_id": shipmentIDs}
	var resp struct {
		ManifestURL string `json:"manifest_url"`
	}
	if err := c.authorizedJSON(ctx, http.MethodPost, "/manifests/generate", payload, &resp); err != nil {
		return "", err
	}
	return resp.ManifestURL, nil
}

// SchedulePickup books a courier pickup for the shipment.
func (c *Client) SchedulePickup(ctx context.Context, shipmentID int64) error {
	payload := map[string]any{"shipment_id": []int64{shipmentID}}
	var resp struct {
		PickupStatus   int    `json:"pickup_status"`
		PickupSchedule string `json:"pickup_scheduled_date"`
	}
	return c.authorizedJSON(ctx, http.MethodPost, "/courier/generate/pickup", payload, &resp)
}

// Serviceability lists couriers able to carry the parcel, cheapest first.
func (c *Client) Serviceability(ctx context.Context, pickupPincode, deliveryPincode string, weightKg float64) ([]CourierOption, error) {
	query := url.Values{}
	query.Set("pickup_postcode", pickupPincode)
	query.Set("delivery_postcode", deliveryPincode)
	query.Set("weight", fmt.Sprintf("%.2f", weightKg))
	query.Set("cod", "0")

	var resp struct {
		Data struct {
			AvailableCourierCompanies []struct {
				CourierCompanyID int64   `json:"courier_company_id"`
				CourierName      string  `json:"courier_name"`
				Rate             float64 `json:"rate"`
				EstimatedDays    int     `json:"estimated_delivery_days,string"`
			} `json:"available_courier_companies"`
		} `json:"data"`
	}
	path := "/courier/serviceability/?" + query.Encode()
	if err := c.authorizedJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	options := make([]CourierOption, 0, len(resp.Data.AvailableCourierCompanies))
	for _, cc := range resp.Data.AvailableCourierCompanies {
		options = append(options, CourierOption{
			CourierID:   cc.CourierCompanyID,
			CourierName: cc.CourierName,
			Rate:        cc.Rate,
			ETDDays:     cc.EstimatedDays,
		})
	}
	sort.Slice(options, func(i, j int) bool { return options[i].Rate < options[j].Rate })
	return options, nil
}

// Track returns the carrier scan history for an AWB.
func (c *Client) Track(ctx context.Context, awb string) ([]TrackingEvent, error) {
	trimmed := strings.TrimSpace(awb)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "awb is required")
	}

	var resp struct {
		TrackingData struct {
			ShipmentTrack []struct {
				Activity string `json:"activity"`
				Location string `json:"location"`
				Date     string `json:"date"`
			} `json:"shipment_track_activities"`
		} `json:"tracking_data"`
	}
	path := "/courier/track/awb/" + url.PathEscape(trimmed)
	if err := c.authorizedJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	events := make([]TrackingEvent, 0, len(resp.TrackingData.ShipmentTrack))
	for _, ev := range resp.TrackingData.ShipmentTrack {
		events = append(events, TrackingEvent{Activity: ev.Activity, Location: ev.Location, Date: ev.Date})
	}
	return events, nil
}

// authorizedJSON runs a request with a cached bearer token, retrying once with
// a fresh token if the old one has been revoked server-side.
func (c *Client) authorizedJSON(ctx context.Context, method, path string, body, out any) error {
	token, err := c.Login(ctx)
	if err != nil {
		return err
	}
	err = c.doJSON(ctx, method, path, token, body, out)
	if isUnauthorized(err) {
		c.invalidateToken()
		token, err = c.Login(ctx)
		if err != nil {
			return err
		}
		err = c.doJSON(ctx, method, path, token, body, out)
	}
	return err
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "shiprocket rate limit wait")
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal shiprocket request")
		}
		reader = bytes.NewReader(payload)
	}

	fullURL := strings.TrimRight(c.baseURL, "/") + apiPrefix + path
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build shiprocket request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute shiprocket request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(statusCode(resp.StatusCode),
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			fmt.Sprintf("shiprocket %s %s failed", method, path))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode shiprocket response")
	}
	return nil
}

func statusCode(status int) pkgerrors.Code {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return pkgerrors.CodeUnauthorized
	case http.StatusTooManyRequests:
		return pkgerrors.CodeRateLimit
	default:
		return pkgerrors.CodeDependency
	}
}

func isUnauthorized(err error) bool {
	if err == nil {
		return false
	}
	typed := pkgerrors.As(err)
	return typed != nil && typed.Code() == pkgerrors.CodeUnauthorized
}
