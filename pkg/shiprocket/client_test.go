package shiprocket

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/deepanshucode1-cmd/trisikha-backend/pkg/config"
)

func testConfig() config.ShiprocketConfig {
	return config.ShiprocketConfig{
		BaseURL:        "http://shiprocket.test",
		Email:          "ops@trisikha.in",
		Password:       "secret",
		RequestTimeout: 5 * time.Second,
		RatePerSecond:  100,
	}
}

func newTestClient(t *testing.T, rt roundTripFunc) *Client {
	t.Helper()
	client, err := NewClient(testConfig(), nil, WithHTTPClient(&http.Client{Transport: rt}))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{},
	}
}

func TestLoginCachesToken(t *testing.T) {
	loginCalls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/auth/login") {
			loginCalls++
			return jsonResponse(http.StatusOK, `{"token":"tok-1"}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})
	client := newTestClient(t, rt)

	for i := 0; i < 3; i++ {
		token, err := client.Login(context.Background())
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if token != "tok-1" {
			t.Fatalf("unexpected token %q", token)
		}
	}
	if loginCalls != 1 {
		t.Fatalf("expected a single login call, got %d", loginCalls)
	}
}

func TestAuthorizedRetriesOnRevokedToken(t *testing.T) {
	loginCalls := 0
	cancelCalls := 0
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/auth/login"):
			loginCalls++
			return jsonResponse(http.StatusOK, `{"token":"tok"}`), nil
		case strings.HasSuffix(req.URL.Path, "/orders/cancel"):
			cancelCalls++
			if cancelCalls == 1 {
				return jsonResponse(http.StatusUnauthorized, `{"message":"token expired"}`), nil
			}
			return jsonResponse(http.StatusOK, `{"message":"cancelled"}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})
	client := newTestClient(t, rt)

	if err := client.CancelShipment(context.Background(), 4411); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if loginCalls != 2 {
		t.Fatalf("expected re-login after 401, got %d logins", loginCalls)
	}
	if cancelCalls != 2 {
		t.Fatalf("expected cancel retry, got %d calls", cancelCalls)
	}
}

func TestCreateShipmentAssignsAWB(t *testing.T) {
	var orderPayload map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/auth/login"):
			return jsonResponse(http.StatusOK, `{"token":"tok"}`), nil
		case strings.HasSuffix(req.URL.Path, "/orders/create/adhoc"):
			body, _ := io.ReadAll(req.Body)
			if err := json.Unmarshal(body, &orderPayload); err != nil {
				t.Fatalf("unmarshal order payload: %v", err)
			}
			return jsonResponse(http.StatusOK, `{"order_id":901,"shipment_id":777,"status":"NEW"}`), nil
		case strings.HasSuffix(req.URL.Path, "/courier/assign/awb"):
			return jsonResponse(http.StatusOK, `{"response":{"data":{"awb_code":"AWB123","courier_company_id":51}}}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})
	client := newTestClient(t, rt)

	shipment, err := client.CreateShipment(context.Background(), CreateShipmentParams{
		OrderRef:       "TRI-1001",
		PickupLocation: "Primary",
		Consignee: ShipmentAddress{
			Name:    "Asha Rao",
			Phone:   "+919812345678",
			Line1:   "14 MG Road",
			City:    "Bengaluru",
			State:   "Karnataka",
			Pincode: "560001",
			Country: "India",
		},
		Items:         []ShipmentItem{{Name: "Cold-pressed oil", SKU: "OIL-1", Units: 2, SellingPrice: 450}},
		SubTotalPaise: 90000,
		WeightKg:      1.2,
	})
	if err != nil {
		t.Fatalf("create shipment: %v", err)
	}
	if shipment.OrderID != 901 || shipment.ShipmentID != 777 {
		t.Fatalf("unexpected shipment ids %+v", shipment)
	}
	if shipment.AWB != "AWB123" {
		t.Fatalf("expected awb assigned, got %q", shipment.AWB)
	}
	if orderPayload["order_id"] != "TRI-1001" {
		t.Fatalf("unexpected order ref %v", orderPayload["order_id"])
	}
	if orderPayload["sub_total"] != float64(900) {
		t.Fatalf("sub_total should be rupees, got %v", orderPayload["sub_total"])
	}
}

func TestCreateShipmentRequiresItems(t *testing.T) {
	client := newTestClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Fatalf("no request expected")
		return nil, nil
	}))
	if _, err := client.CreateShipment(context.Background(), CreateShipmentParams{}); err == nil {
		t.Fatalf("expected validation error for empty items")
	}
}

func TestServiceabilitySortsByRate(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/auth/login"):
			return jsonResponse(http.StatusOK, `{"token":"tok"}`), nil
		case strings.Contains(req.URL.Path, "/courier/serviceability"):
			if req.URL.Query().Get("pickup_postcode") != "560001" {
				t.Fatalf("unexpected pickup pincode %q", req.URL.Query().Get("pickup_postcode"))
			}
			return jsonResponse(http.StatusOK, `{"data":{"available_courier_companies":[
				{"courier_company_id":2,"courier_name":"CourierB","rate":92.5,"estimated_delivery_days":"3"},
				{"courier_company_id":1,"courier_name":"CourierA","rate":61.0,"estimated_delivery_days":"5"}
			]}}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})
	client := newTestClient(t, rt)

	options, err := client.Serviceability(context.Background(), "560001", "110001", 1.5)
	if err != nil {
		t.Fatalf("serviceability: %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("expected 2 couriers, got %d", len(options))
	}
	if options[0].CourierName != "CourierA" || options[1].CourierName != "CourierB" {
		t.Fatalf("couriers not sorted by rate: %+v", options)
	}
}

func TestTrackReturnsEvents(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case strings.HasSuffix(req.URL.Path, "/auth/login"):
			return jsonResponse(http.StatusOK, `{"token":"tok"}`), nil
		case strings.Contains(req.URL.Path, "/courier/track/awb/AWB123"):
			return jsonResponse(http.StatusOK, `{"tracking_data":{"shipment_track_activities":[
				{"activity":"Picked Up","location":"Bengaluru","date":"2026-08-20 10:04"}
			]}}`), nil
		}
		t.Fatalf("unexpected path %s", req.URL.Path)
		return nil, nil
	})
	client := newTestClient(t, rt)

	events, err := client.Track(context.Background(), "AWB123")
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if len(events) != 1 || events[0].Activity != "Picked Up" {
		t.Fatalf("unexpected events %+v", events)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
