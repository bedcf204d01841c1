// README: Counter-offers recorded against a pending ride.
package bargain

import (
	"time"

	"campusride/internal/types"
)

type Offer struct {
	ID        int64     `json:"id"`
	RideID    types.ID  `json:"ride_id"`
	OfferedBy types.ID  `json:"offered_by"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
