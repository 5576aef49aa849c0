package types

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/schema"
)

// InterpolationRequest is the query string of an interpolated data read.
type InterpolationRequest struct {
	StartIndex        string `schema:"startIndex"`
	EndIndex          string `schema:"endIndex"`
	Interval          string `schema:"interval"`
	Count             int    `schema:"count,omitempty"`
	ContinuationToken string `schema:"continuationToken,omitempty"`
}

// MaxPageSize caps the rows returned per interpolated data page.
const MaxPageSize = 250000

var (
	queryDecoder = schema.NewDecoder()
	queryEncoder = schema.NewEncoder()
)

func init() {
	queryDecoder.IgnoreUnknownKeys(true)
}

func NewInterpolationRequest(start, end time.Time, interval time.Duration) InterpolationRequest {
	return InterpolationRequest{
		StartIndex: start.UTC().Format(time.RFC3339),
		EndIndex:   end.UTC().Format(time.RFC3339),
		Interval:   FormatTimeSpan(interval),
	}
}

func InterpolationRequestFromQuery(query url.Values) (*InterpolationRequest, error) {
	req := &InterpolationRequest{}
	if err := queryDecoder.Decode(req, query); err != nil {
		return nil, err
	}
	return req, nil
}

func (r InterpolationRequest) Values() (url.Values, error) {
	v := url.Values{}
	if err := queryEncoder.Encode(r, v); err != nil {
		return nil, err
	}
	return v, nil
}

// Window parses the start, end and interval fields.
func (r InterpolationRequest) Window() (start, end time.Time, interval time.Duration, err error) {
	if start, err = ParseIndex(r.StartIndex); err != nil {
		return start, end, interval, fmt.Errorf("startIndex: %w", err)
	}
	if end, err = ParseIndex(r.EndIndex); err != nil {
		return start, end, interval, fmt.Errorf("endIndex: %w", err)
	}
	if interval, err = ParseTimeSpan(r.Interval); err != nil {
		return start, end, interval, fmt.Errorf("interval: %w", err)
	}
	return start, end, interval, nil
}

// Offset is the first row of the requested page.
func (r InterpolationRequest) Offset() (int, error) {
	if r.ContinuationToken == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(r.ContinuationToken)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid continuation token %q", r.ContinuationToken)
	}
	return n, nil
}

func (r InterpolationRequest) PageSize() int {
	if r.Count <= 0 || r.Count > MaxPageSize {
		return MaxPageSize
	}
	return r.Count
}

// ParseIndex accepts RFC3339 timestamps and zone-less forms, read as UTC.
func ParseIndex(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("index is required")
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid index %q", raw)
}
