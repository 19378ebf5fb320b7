// types.go
// Purpose: Wire envelopes exchanged with the simulation server and the typed
// descriptions carried inside events. Everything here is plain JSON.
package common

import (
	"encoding/json"
	"fmt"
)

type Direction string

const (
	DirUp   Direction = "up"
	DirDown Direction = "down"
	DirNone Direction = "none"
)

// Opposite flips up and down. DirNone stays DirNone.
func (d Direction) Opposite() Direction {
	switch d {
	case DirUp:
		return DirDown
	case DirDown:
		return DirUp
	default:
		return DirNone
	}
}

// Event types sent by the server.
const (
	EvModelChanged     = "modelChanged"
	EvCarRequested     = "carRequested"
	EvDoorOpened       = "doorOpened"
	EvDoorClosed       = "doorClosed"
	EvDoorSensorClear  = "doorSensorClear"
	EvCarArrived       = "carArrived"
	EvPersonEnteredCar = "personEnteredCar"
	EvPersonLeftCar    = "personLeftCar"
	EvFloorRequested   = "floorRequested"
	EvActionProcessed  = "actionProcessed"
	EvSimulationEnded  = "simulationEnded"
	EvReconnected      = "reconnected"
)

// Action types sent by the controller.
const (
	ActSendCar             = "sendCar"
	ActChangeNextDirection = "changeNextDirection"
	ActReconnected         = "reconnected"

	MsgEventProcessed = "eventProcessed"
)

// Action statuses reported in actionProcessed.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusInProgress = "inProgress"
)

// Event is the inbound envelope. Description is decoded lazily by the
// handler that owns the event type.
type Event struct {
	Type        string          `json:"type"`
	ID          int             `json:"id"`
	Time        int64           `json:"time"`
	Description json.RawMessage `json:"description,omitempty"`
}

// Decode unpacks the description into v.
func (e Event) Decode(v any) error {
	if len(e.Description) == 0 {
		return fmt.Errorf("event %d (%s): missing description", e.ID, e.Type)
	}
	if err := json.Unmarshal(e.Description, v); err != nil {
		return fmt.Errorf("event %d (%s): decode description: %w", e.ID, e.Type, err)
	}
	return nil
}

type Action struct {
	Type   string         `json:"type"`
	ID     int            `json:"id"`
	Params map[string]any `json:"params"`
}

type EventProcessed struct {
	Type string `json:"type"`
	ID   int    `json:"id"`
}

func NewEventProcessed(id int) EventProcessed {
	return EventProcessed{Type: MsgEventProcessed, ID: id}
}

// ---------------------------------------------------------------------------
// Event descriptions
// ---------------------------------------------------------------------------

type FloorInfo struct {
	ID     int     `json:"id"`
	Height float64 `json:"height"`
}

type CarInfo struct {
	ID             int     `json:"id"`
	ServicedFloors []int   `json:"servicedFloors"`
	CurrentHeight  float64 `json:"currentHeight"`
	Occupants      int     `json:"occupants"`
	Capacity       int     `json:"capacity"`
}

// ModelSnapshot is the description of a modelChanged event.
type ModelSnapshot struct {
	Floors []FloorInfo `json:"floors"`
	Cars   []CarInfo   `json:"cars"`
}

type CarRequested struct {
	Floor     int       `json:"floor"`
	Direction Direction `json:"direction"`
}

// CarAtFloor covers doorOpened, doorClosed, doorSensorClear, carArrived
// and floorRequested, which all carry a floor and a car.
type CarAtFloor struct {
	Floor int `json:"floor"`
	Car   int `json:"car"`
}

type PersonInCar struct {
	Car int `json:"car"`
}

type ActionProcessed struct {
	ActionID      int    `json:"actionId"`
	Status        string `json:"status"`
	FailureReason string `json:"failureReason,omitempty"`
}

type Reconnected struct {
	UnprocessedEvents []Event `json:"unprocessedEvents"`
}
