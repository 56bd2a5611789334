package integration

import (
	"context"
	"time"
)

type Trip struct {
	ID          string
	Destination string
	StartDate   time.Time
	EndDate     time.Time
	Status      string
}

type Booking struct {
	ID        string
	Kind      string
	Status    string
	Reference string
}

type FlightOption struct {
	Carrier     string
	FlightNo    string
	Origin      string
	Destination string
	Departs     time.Time
	Arrives     time.Time
	PriceGBP    float64
}

type HotelOption struct {
	Name          string
	Location      string
	NightlyGBP    float64
	CorporateRate bool
}

// TripBookingProvider is the read surface of a travel platform. All four
// operations are read-only; the bot never books on a user's behalf.
type TripBookingProvider interface {
	GetUserTrips(ctx context.Context, email string) ([]Trip, error)
	GetBookingStatus(ctx context.Context, bookingID string) (*Booking, error)
	SearchFlights(ctx context.Context, origin, destination string, date time.Time) ([]FlightOption, error)
	SearchHotels(ctx context.Context, location string, checkin, checkout time.Time) ([]HotelOption, error)
}
