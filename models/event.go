package models

import (
	"time"
)

type Event struct {
	ID               string    `json:"id"`
	OrganizerID      string    `json:"organizer_id"`
	Name             string    `json:"name"`
	Venue            string    `json:"venue"`
	StartTime        time.Time `json:"start_time"`
	TotalSeats       int       `json:"total_seats"`
	AvailableSeats   int       `json:"available_seats"`
	AvailableTickets int       `json:"available_tickets"`
	Status           string    `json:"status"` // draft, published, ended
}
