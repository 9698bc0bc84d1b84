package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNameSizeDetector(t *testing.T) {
	detector := NewNameSizeDetector()

	tests := []struct {
		name string
		want string
	}{
		{"Pizza Grande Calabresa", SizeLarge},
		{"Pizza Média 2 Sabores", SizeMedium},
		{"Pizza Broto Margherita", SizeSmall},
		{"Pizza Família Portuguesa", SizeFamily},
		{"Large Pepperoni Pizza", SizeLarge},
		{"Coca-Cola 2L", ""},
		{"GRANDE mussarela", SizeLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, detector.DetectSize(tt.name))
		})
	}
}
