package models

import (
	"net/http"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/clock"
)

// ResponseModel is the envelope every JSON endpoint returns.
type ResponseModel struct {
	Code        int                 `json:"code"`
	CurrentTime int64               `json:"currentTime"`
	Text        string              `json:"text"`
	Data        any                 `json:"data,omitempty"`
	FieldErrors map[string][]string `json:"fieldErrors,omitempty"`
}

// ResponseCurrentTime is the clock's time in unix milliseconds.
func ResponseCurrentTime(c clock.Clock) int64 {
	return c.Now().UnixMilli()
}

func NewOKResponse(data any, c clock.Clock) ResponseModel {
	return NewResponse(http.StatusOK, data, "OK", c)
}

func NewResponse(code int, data any, text string, c clock.Clock) ResponseModel {
	return ResponseModel{
		Code:        code,
		CurrentTime: ResponseCurrentTime(c),
		Text:        text,
		Data:        data,
	}
}

// ListData wraps a list so that an empty result encodes as [] rather than null.
type ListData[T any] struct {
	List []T `json:"list"`
}

func NewListData[T any](items []T) ListData[T] {
	if items == nil {
		items = []T{}
	}
	return ListData[T]{List: items}
}
