// Package envelope wraps events in the JSON envelope shared by the
// line-oriented destinations. The layout follows the Splunk HTTP Event
// Collector event format.
package envelope

import (
	"strconv"
	"time"

	"github.com/ajitpratap0/gridfeed/pkg/connector/core"
	jsonpool "github.com/ajitpratap0/gridfeed/pkg/json"
)

// Envelope is one event with its metadata
type Envelope struct {
	Time       jsonpool.Number     `json:"time"`
	Host       string              `json:"host,omitempty"`
	Source     string              `json:"source,omitempty"`
	SourceType string              `json:"sourcetype,omitempty"`
	Index      string              `json:"index,omitempty"`
	Event      jsonpool.RawMessage `json:"event"`
}

// New builds the envelope for e. index may be empty.
func New(e *core.Event, index string) Envelope {
	return Envelope{
		Time:       jsonpool.Number(FormatTime(e.Time)),
		Host:       e.Host,
		Source:     e.Source,
		SourceType: e.SourceType,
		Index:      index,
		Event:      jsonpool.RawMessage(e.Data),
	}
}

// Marshal encodes the envelope of e as compact JSON
func Marshal(e *core.Event, index string) ([]byte, error) {
	return jsonpool.MarshalCompact(New(e, index))
}

// FormatTime renders t as epoch seconds with millisecond precision
func FormatTime(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixMilli())/1000, 'f', 3, 64)
}
