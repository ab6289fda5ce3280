package promptpay

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16CheckValue(t *testing.T) {
	assert.Equal(t, uint16(0x29B1), CRC16([]byte("123456789")))
}

func TestPayloadPhoneWithAmount(t *testing.T) {
	p, err := Payload("081-234-5678", decimal.RequireFromString("263.25"))
	require.NoError(t, err)

	assert.Equal(t, "000201"+"010212"+
		"2937"+"0016A000000677010111"+"01130066812345678"+
		"5802TH"+"5303764"+"5406263.25"+"6304", p[:len(p)-4])
	assert.Equal(t, fmt.Sprintf("%04X", CRC16([]byte(p[:len(p)-4]))), p[len(p)-4:])
}

func TestPayloadStaticWithoutAmount(t *testing.T) {
	p, err := Payload("0812345678", decimal.Zero)
	require.NoError(t, err)
	assert.Contains(t, p, "010211")
	assert.NotContains(t, p, "5406")
}

func TestPayloadTaxIDAndEWallet(t *testing.T) {
	p, err := Payload("1234567890123", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Contains(t, p, "02131234567890123")
	assert.Contains(t, p, "5406100.00")

	p, err = Payload("123456789012345", decimal.NewFromInt(1))
	require.NoError(t, err)
	assert.Contains(t, p, "0315123456789012345")
}

func TestPayloadRejectsBadInput(t *testing.T) {
	_, err := Payload("12345", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = Payload("0812345678", decimal.NewFromInt(-1))
	assert.Error(t, err)
}
