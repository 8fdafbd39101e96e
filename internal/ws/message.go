package ws

import (
	"time"

	"github.com/HerbHall/sleepcast/internal/diary"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// MessageType discriminates WebSocket messages.
type MessageType string

const (
	MessageForecastRefreshed MessageType = "forecast.refreshed"
	MessageForecastRejected  MessageType = "forecast.rejected"
	MessagePeriodRecorded    MessageType = "period.recorded"
	MessagePeriodDeleted     MessageType = "period.deleted"
)

// Message is the envelope for all WebSocket messages. ID is the snapshot
// or period the message concerns, when there is one.
type Message struct {
	Type      MessageType `json:"type"`
	ID        string      `json:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// ForecastRefreshedData is the payload for forecast.refreshed messages.
// Clients fetch the full snapshot when they need the rows.
type ForecastRefreshedData struct {
	Rows        int           `json:"rows"`
	DayLength   time.Duration `json:"day_length"`
	SleepAnchor time.Time     `json:"sleep_anchor"`
	WakeAnchor  time.Time     `json:"wake_anchor"`
}

// ForecastRejectedData is the payload for forecast.rejected messages.
type ForecastRejectedData struct {
	Reason string `json:"reason"`
}

// PeriodRecordedData is the payload for period.recorded messages. Live is
// set when the observation could be applied to the last refreshed forecast.
type PeriodRecordedData struct {
	Kind     sleep.Kind          `json:"kind,omitempty"`
	Period   *sleep.Period       `json:"period,omitempty"`
	Imported int                 `json:"imported,omitempty"`
	Live     *diary.LiveForecast `json:"live,omitempty"`
}
