// Package navan is the placeholder client for the Navan travel platform.
// The API surface is defined so the wiring is ready, but no operation is
// implemented yet: everything returns ErrNotImplemented and Enabled stays
// false unless explicitly switched on in configuration, so the client never
// participates in the live answer pipeline.
package navan

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/kaluza/askbot/integration"
)

var ErrNotImplemented = errors.New("navan: not implemented")

type Config struct {
	Enabled   bool
	APIKey    string
	APISecret string
}

type Client struct {
	cfg Config
}

var (
	_ integration.TripBookingProvider = (*Client)(nil)
	_ integration.ContextProvider     = (*Client)(nil)
)

func New(cfg Config) *Client {
	return &Client{cfg: cfg}
}

func (c *Client) Name() string { return "navan" }

// Enabled requires both the config toggle and credentials, so a stray
// ASKBOT_NAVAN_ENABLED=true without keys still keeps the client inert.
func (c *Client) Enabled() bool {
	if c == nil || !c.cfg.Enabled {
		return false
	}
	return strings.TrimSpace(c.cfg.APIKey) != "" && strings.TrimSpace(c.cfg.APISecret) != ""
}

func (c *Client) EnrichContext(ctx context.Context, question, userEmail string) (string, error) {
	if !c.Enabled() {
		return "", nil
	}
	return "", ErrNotImplemented
}

func (c *Client) GetUserTrips(ctx context.Context, email string) ([]integration.Trip, error) {
	return nil, ErrNotImplemented
}

func (c *Client) GetBookingStatus(ctx context.Context, bookingID string) (*integration.Booking, error) {
	return nil, ErrNotImplemented
}

func (c *Client) SearchFlights(ctx context.Context, origin, destination string, date time.Time) ([]integration.FlightOption, error) {
	return nil, ErrNotImplemented
}

func (c *Client) SearchHotels(ctx context.Context, location string, checkin, checkout time.Time) ([]integration.HotelOption, error) {
	return nil, ErrNotImplemented
}
