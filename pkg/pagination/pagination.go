package pagination

import (
	"fmt"
	"strconv"

	"learnhub-backend/pkg/constants"
)

// Params holds limit/offset pagination
type Params struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// Parse reads limit and offset query values. Empty values take the defaults;
// limit is clamped to [1, MaxPageSize] and a negative offset becomes 0.
func Parse(limitStr, offsetStr string) (Params, error) {
	p := Params{Limit: constants.DefaultPageSize}

	if limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			return Params{}, fmt.Errorf("invalid limit parameter: %w", err)
		}
		p.Limit = l
	}

	if offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil {
			return Params{}, fmt.Errorf("invalid offset parameter: %w", err)
		}
		p.Offset = o
	}

	return p.Normalize(), nil
}

// Normalize clamps out-of-range values
func (p Params) Normalize() Params {
	if p.Limit < 1 {
		p.Limit = constants.DefaultPageSize
	} else if p.Limit > constants.MaxPageSize {
		p.Limit = constants.MaxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
