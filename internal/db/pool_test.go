package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://analytics:s3cret@db:5432/sensors", "postgres://analytics:***@db:5432/sensors"},
		{"postgres://db:5432/sensors", "postgres://db:5432/sensors"},
		{"", "<empty>"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, maskPassword(tt.in))
	}
}
