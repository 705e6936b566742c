package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSameAddress(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"identical", "0xabc123", "0xabc123", true},
		{"case insensitive", "0xABC123", "0xabc123", true},
		{"prefix stripped", "abc123", "0xabc123", true},
		{"surrounding whitespace", "  0xAbC123 ", "abc123", true},
		{"different addresses", "0xabc123", "0xdef456", false},
		{"stellar contract ids", "CC7YMFMYZM2HE6O3JT5CNTFBHVXCZTV7CEYT56IGBHR4XFNTGTN62CPT", "cc7ymfmyzm2he6o3jt5cntfbhvxcztv7ceyt56igbhr4xfntgtn62cpt", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameAddress(tt.a, tt.b))
		})
	}
}

func TestSameSignature(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		want bool
	}{
		{"identical", "Transfer(address,address,uint256)", "Transfer(address,address,uint256)", true},
		{"whitespace insensitive", "Transfer(address, address, uint256)", "Transfer(address,address,uint256)", true},
		{"tab and newline insensitive", "Transfer(address,\taddress,\nuint256)", "Transfer(address,address,uint256)", true},
		{"case insensitive", "TRANSFER(ADDRESS,ADDRESS,UINT256)", "transfer(address,address,uint256)", true},
		{"different arity", "Transfer(address,uint256)", "Transfer(address,address,uint256)", false},
		{"different name", "Approval(address,address,uint256)", "Transfer(address,address,uint256)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameSignature(tt.a, tt.b))
		})
	}
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "abc123", NormalizeAddress(" 0xAbC 123 "))
	assert.Equal(t, "abc123", NormalizeAddress("\t0xAbC123\n"))
	assert.Equal(t, "", NormalizeAddress(""))
}
