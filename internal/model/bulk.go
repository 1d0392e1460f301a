package model

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrEmptyRooms is returned when a bulk scope selects no rooms.
	ErrEmptyRooms = errors.New("bulk scope has no rooms")

	// ErrNoActions is returned when a bulk edit would change nothing.
	ErrNoActions = errors.New("bulk edit has no actions")
)

// BulkScope is the room × date cross-product a bulk edit applies to.
type BulkScope struct {
	From    Date    `json:"from"`
	To      Date    `json:"to"`
	RoomIDs []int64 `json:"room_ids"`
}

// Validate rejects an empty room set or an inverted date range.
func (s BulkScope) Validate() error {
	if len(s.RoomIDs) == 0 {
		return ErrEmptyRooms
	}
	if err := (Window{From: s.From, To: s.To}).Validate(); err != nil {
		return fmt.Errorf("bulk scope: %w", err)
	}
	return nil
}

// Cells returns the number of logical cells covered by the scope.
func (s BulkScope) Cells() int {
	days := s.From.DaysUntil(s.To) + 1
	if days < 0 {
		days = 0
	}
	return len(s.RoomIDs) * days
}

// PriceAction selects how a bulk edit changes rates.
type PriceAction string

const (
	PriceUnchanged PriceAction = ""
	PriceSet       PriceAction = "set"
	PriceIncrease  PriceAction = "increase"
	PriceDecrease  PriceAction = "decrease"
)

// PriceMode says whether an increase/decrease is absolute or a percentage.
type PriceMode string

const (
	PriceAmount  PriceMode = "amount"
	PricePercent PriceMode = "percent"
)

// AvailabilityAction opens or closes inventory.
type AvailabilityAction string

const (
	AvailabilityUnchanged AvailabilityAction = ""
	AvailabilityOpen      AvailabilityAction = "open"
	AvailabilityClose     AvailabilityAction = "close"
)

// BulkActions records what the user touched in the action step. Zero values
// and nil pointers mean "leave unchanged".
type BulkActions struct {
	PriceAction        PriceAction        `json:"price_action,omitempty"`
	PriceMode          PriceMode          `json:"price_mode,omitempty"`
	PriceValue         float64            `json:"price_value,omitempty"`
	AvailabilityAction AvailabilityAction `json:"availability_action,omitempty"`
	MinStay            *int               `json:"min_stay,omitempty"`
	ClosedToArrival    *bool              `json:"closed_to_arrival,omitempty"`
	ClosedToDeparture  *bool              `json:"closed_to_departure,omitempty"`
}

// Empty reports whether no action was selected.
func (a BulkActions) Empty() bool {
	return a.PriceAction == PriceUnchanged &&
		a.AvailabilityAction == AvailabilityUnchanged &&
		a.MinStay == nil && a.ClosedToArrival == nil && a.ClosedToDeparture == nil
}

// RateAdjustment is a relative price change.
type RateAdjustment struct {
	Direction PriceAction `json:"direction"`
	Mode      PriceMode   `json:"mode"`
	Value     float64     `json:"value"`
}

// BulkPayload is the single mutation request submitted for a bulk edit.
// Absent (nil) fields are left unchanged by the server.
type BulkPayload struct {
	PropertyID        int64           `json:"property_id,omitempty"`
	RoomIDs           []int64         `json:"room_ids"`
	DateFrom          Date            `json:"date_from"`
	DateTo            Date            `json:"date_to"`
	Rate              *float64        `json:"rate,omitempty"`
	RateAdjustment    *RateAdjustment `json:"rate_adjustment,omitempty"`
	IsAvailable       *bool           `json:"is_available,omitempty"`
	MinStay           *int            `json:"min_stay,omitempty"`
	ClosedToArrival   *bool           `json:"closed_to_arrival,omitempty"`
	ClosedToDeparture *bool           `json:"closed_to_departure,omitempty"`
	Cells             int             `json:"cells"`
}

// BuildBulkPayload translates a validated scope and the touched actions into
// one request.
func BuildBulkPayload(propertyID int64, scope BulkScope, actions BulkActions) (BulkPayload, error) {
	if err := scope.Validate(); err != nil {
		return BulkPayload{}, err
	}
	if actions.Empty() {
		return BulkPayload{}, ErrNoActions
	}

	rooms := slices.Clone(scope.RoomIDs)
	slices.Sort(rooms)
	rooms = slices.Compact(rooms)

	p := BulkPayload{
		PropertyID: propertyID,
		RoomIDs:    rooms,
		DateFrom:   scope.From,
		DateTo:     scope.To,
	}
	p.Cells = BulkScope{From: scope.From, To: scope.To, RoomIDs: rooms}.Cells()

	switch actions.PriceAction {
	case PriceUnchanged:
	case PriceSet:
		if actions.PriceValue < 0 || !finite(actions.PriceValue) {
			return BulkPayload{}, fmt.Errorf("price %v: %w", actions.PriceValue, ErrInvalidValue)
		}
		v := actions.PriceValue
		p.Rate = &v
	case PriceIncrease, PriceDecrease:
		mode := actions.PriceMode
		if mode == "" {
			mode = PriceAmount
		}
		if mode != PriceAmount && mode != PricePercent {
			return BulkPayload{}, fmt.Errorf("price mode %q: %w", mode, ErrInvalidValue)
		}
		if actions.PriceValue <= 0 || !finite(actions.PriceValue) {
			return BulkPayload{}, fmt.Errorf("price adjustment %v: %w", actions.PriceValue, ErrInvalidValue)
		}
		p.RateAdjustment = &RateAdjustment{Direction: actions.PriceAction, Mode: mode, Value: actions.PriceValue}
	default:
		return BulkPayload{}, fmt.Errorf("price action %q: %w", actions.PriceAction, ErrInvalidValue)
	}

	switch actions.AvailabilityAction {
	case AvailabilityUnchanged:
	case AvailabilityOpen, AvailabilityClose:
		open := actions.AvailabilityAction == AvailabilityOpen
		p.IsAvailable = &open
	default:
		return BulkPayload{}, fmt.Errorf("availability action %q: %w", actions.AvailabilityAction, ErrInvalidValue)
	}

	if actions.MinStay != nil {
		if *actions.MinStay < 1 {
			return BulkPayload{}, fmt.Errorf("min_stay %d: %w", *actions.MinStay, ErrInvalidValue)
		}
		v := *actions.MinStay
		p.MinStay = &v
	}
	if actions.ClosedToArrival != nil {
		v := *actions.ClosedToArrival
		p.ClosedToArrival = &v
	}
	if actions.ClosedToDeparture != nil {
		v := *actions.ClosedToDeparture
		p.ClosedToDeparture = &v
	}
	return p, nil
}

// BulkStep is the wizard position.
type BulkStep int

const (
	StepScope   BulkStep = 1
	StepActions BulkStep = 2
	StepConfirm BulkStep = 3
)

func (s BulkStep) String() string {
	switch s {
	case StepScope:
		return "scope"
	case StepActions:
		return "actions"
	case StepConfirm:
		return "confirm"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// BulkEditState is the wizard state. It is never persisted.
type BulkEditState struct {
	IsOpen  bool        `json:"is_open"`
	Step    BulkStep    `json:"step"`
	Scope   BulkScope   `json:"scope"`
	Actions BulkActions `json:"actions"`
	Error   string      `json:"error,omitempty"`
}
