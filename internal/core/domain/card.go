package domain

// Card is a prepaid fuel card owned by the authenticated user. The balance is
// a cached copy of the authority's value and is replaced wholesale on reload;
// the client never persists a locally computed balance.
type Card struct {
	ID      int64   `json:"id"`
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

// FuelType is the kind of fuel recorded with a spend.
type FuelType string

const (
	FuelTypeLPG    FuelType = "lpg"
	FuelTypePetrol FuelType = "petrol"
	FuelTypeDiesel FuelType = "diesel"
)

// Price bands for the fallback fuel-type classifier. These are an inherited
// heuristic with no currency validation; the authority's explicit fuel type
// always takes precedence.
const (
	lpgMaxPrice    = 3.50
	petrolMaxPrice = 5.70
)

// ClassifyFuelPrice derives a fuel type from a per-liter price. Used only when
// the authority does not supply an explicit fuel type.
func ClassifyFuelPrice(pricePerLiter float64) FuelType {
	switch {
	case pricePerLiter <= lpgMaxPrice:
		return FuelTypeLPG
	case pricePerLiter <= petrolMaxPrice:
		return FuelTypePetrol
	default:
		return FuelTypeDiesel
	}
}
