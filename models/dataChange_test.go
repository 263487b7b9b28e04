package models

import "testing"

func TestAggregateCalculatorStatus(t *testing.T) {
	cases := []struct {
		name     string
		statuses []ChangeStatus
		want     ChangeStatus
		message  string
	}{
		{name: "empty run is undefined", statuses: nil, want: ChangeStatusUndefined},
		{name: "all new", statuses: []ChangeStatus{ChangeStatusNew, ChangeStatusNew}, want: ChangeStatusNew},
		{name: "all success", statuses: []ChangeStatus{ChangeStatusSuccess}, want: ChangeStatusSuccess},
		{name: "failure wins", statuses: []ChangeStatus{ChangeStatusSuccess, ChangeStatusFailure, ChangeStatusNew}, want: ChangeStatusFailure, message: "boom"},
		{name: "pending wins over success", statuses: []ChangeStatus{ChangeStatusSuccess, ChangeStatusPending}, want: ChangeStatusPending},
		{name: "partially processed run is pending", statuses: []ChangeStatus{ChangeStatusSuccess, ChangeStatusNew}, want: ChangeStatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			changes := make([]DataChange, 0, len(tc.statuses))
			for _, status := range tc.statuses {
				change := DataChange{Status: status}
				if status == ChangeStatusFailure {
					change.ErrorMessage = "boom"
				}
				changes = append(changes, change)
			}

			status, message, err := AggregateCalculatorStatus(changes)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if status != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, status)
			}
			if message != tc.message {
				t.Fatalf("expected message %q, got %q", tc.message, message)
			}
		})
	}
}

func TestAggregateCalculatorStatusRejectsUnknownMix(t *testing.T) {
	_, _, err := AggregateCalculatorStatus([]DataChange{{Status: ChangeStatusUndefined}})
	if err == nil {
		t.Fatal("expected an error for an unknown status mix")
	}
}
