package orders

import (
	"fmt"
	"strings"

	"storefront/internal/apperr"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipping   Status = "shipping"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var validStatuses = []Status{StatusPending, StatusProcessing, StatusShipping, StatusDelivered, StatusCancelled}

var ErrInvalidStatus = apperr.BadRequest("Invalid order status. Valid statuses: " + statusList())

// rank orders the forward path; cancelled sits outside it.
var rank = map[Status]int{
	StatusPending:    0,
	StatusProcessing: 1,
	StatusShipping:   2,
	StatusDelivered:  3,
}

func ValidStatuses() []Status {
	out := make([]Status, len(validStatuses))
	copy(out, validStatuses)
	return out
}

func statusList() string {
	names := make([]string, 0, len(validStatuses))
	for _, s := range validStatuses {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}

// ParseStatus accepts one of the five order states, case-insensitively.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range validStatuses {
		if s == v {
			return s, nil
		}
	}
	return "", ErrInvalidStatus.WithDetails(map[string]any{
		"status": raw,
		"valid":  ValidStatuses(),
	})
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// TransitionPolicy decides which status changes an administrator may make.
// With AllowBackward the machine accepts any valid target, which is the
// historical behaviour.
type TransitionPolicy struct {
	AllowBackward bool
}

func (p TransitionPolicy) Check(from, to Status) error {
	if from == to || p.AllowBackward {
		return nil
	}
	if from.Terminal() {
		return apperr.Conflict(fmt.Sprintf("order is %s and can no longer change status", from))
	}
	if to == StatusCancelled {
		return nil
	}
	fromRank, known := rank[from]
	if known && rank[to] < fromRank {
		return apperr.Conflict(fmt.Sprintf("cannot move order from %s back to %s", from, to))
	}
	return nil
}
