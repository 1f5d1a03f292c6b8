package models_test

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"

	"fintrek/internal/models"
)

func TestMoneyColumnsKeepFourDecimals(t *testing.T) {
	tests := []struct {
		model interface{}
		field string
	}{
		{&models.Account{}, "Balance"},
		{&models.Transaction{}, "Amount"},
	}

	for _, tt := range tests {
		s, err := schema.Parse(tt.model, &sync.Map{}, schema.NamingStrategy{})
		if err != nil {
			t.Fatalf("parse %T: %v", tt.model, err)
		}
		f := s.LookUpField(tt.field)
		if f == nil {
			t.Fatalf("%s.%s not found", s.Name, tt.field)
		}
		if f.DataType != "numeric(20,4)" {
			t.Errorf("%s.%s: expected numeric(20,4), got %q", s.Name, tt.field, f.DataType)
		}
	}
}
