package app

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "Backup",
			parameters: "main",
		},
		{
			name:       "empty parameters",
			operation:  "ListAccounts",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Name != tt.operation {
				t.Errorf("Name = %q, want %q", op.Name, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if _, err := uuid.Parse(op.ID); err != nil {
				t.Errorf("ID %q is not a UUID: %v", op.ID, err)
			}
			if op.StartedAt.IsZero() {
				t.Error("StartedAt not set")
			}
		})
	}

	if NewOperation("a", "").ID == NewOperation("a", "").ID {
		t.Error("operations share an ID")
	}
}

func TestOperation_Observe(t *testing.T) {
	tests := []struct {
		name string
		errs []error
		want bool
	}{
		{name: "no errors", errs: []error{nil, nil}, want: false},
		{name: "one error", errs: []error{nil, errors.New("boom")}, want: true},
		{name: "later success keeps failure", errs: []error{errors.New("boom"), nil}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Restore", "")
			for _, err := range tt.errs {
				if got := op.Observe(err); got != err {
					t.Errorf("Observe() = %v, want %v", got, err)
				}
			}
			if got := op.Failed(); got != tt.want {
				t.Errorf("Failed() = %v, want %v", got, tt.want)
			}
		})
	}
}
