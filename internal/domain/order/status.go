package order

// Status is an order's position in the fulfillment lifecycle.
type Status string

const (
	StatusPlaced         Status = "placed"
	StatusPacking        Status = "packing"
	StatusShipping       Status = "shipping"
	StatusOutForDelivery Status = "out_for_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
)

// transitions is the full set of permitted status edges. Cancellation is
// only reachable while the order has not left the warehouse.
var transitions = map[Status][]Status{
	StatusPlaced:         {StatusPacking, StatusCancelled},
	StatusPacking:        {StatusShipping, StatusCancelled},
	StatusShipping:       {StatusOutForDelivery},
	StatusOutForDelivery: {StatusDelivered},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPlaced, StatusPacking, StatusShipping,
		StatusOutForDelivery, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is permitted from s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransitionTo reports whether the lifecycle permits moving from s to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}
