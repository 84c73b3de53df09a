package handler

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookingRequestParse(t *testing.T) {
	propertyID := uuid.New()

	tests := []struct {
		name       string
		req        createBookingRequest
		wantFields []string
	}{
		{
			name: "valid",
			req: createBookingRequest{
				PropertyID: propertyID.String(),
				CheckIn:    "2026-12-01",
				CheckOut:   "2026-12-03",
				NumGuests:  2,
			},
		},
		{
			name:       "empty",
			req:        createBookingRequest{},
			wantFields: []string{"property_id", "check_in", "check_out", "num_guests"},
		},
		{
			name: "malformed values",
			req: createBookingRequest{
				PropertyID: "abc",
				CheckIn:    "01/12/2026",
				CheckOut:   "2026-12-03T00:00:00Z",
				NumGuests:  1,
			},
			wantFields: []string{"property_id", "check_in", "check_out"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, errs := tc.req.parse()

			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tc.wantFields, fields)

			if len(tc.wantFields) == 0 {
				require.Equal(t, propertyID, got.PropertyID)
				assert.Equal(t, time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC), got.CheckIn)
				assert.Equal(t, time.Date(2026, 12, 3, 0, 0, 0, 0, time.UTC), got.CheckOut)
				assert.Equal(t, 2, got.NumGuests)
			}
		})
	}
}
