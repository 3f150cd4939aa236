package offers

import "time"

type CreateInput struct {
	RentalRequestID string
	RentAmount      float64
	DepositAmount   float64
	LeaseDuration   int
	AvailableFrom   time.Time
	PropertyAddress string
	PropertyType    string
	PropertySize    float64
	Rooms           int
	Description     string
}
