// Package promptpay builds PromptPay (Thai QR Payment) payloads in the
// EMVCo merchant-presented QR format.
package promptpay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidTarget = errors.New("promptpay id must be a phone number, 13-digit tax id or 15-digit e-wallet id")

const (
	tagPayloadFormat = "00"
	tagPOIMethod     = "01"
	tagMerchantBOT   = "29"
	tagCurrency      = "53"
	tagAmount        = "54"
	tagCountry       = "58"
	tagCRC           = "63"

	aidPromptPay = "A000000677010111"

	subPhone   = "01"
	subTaxID   = "02"
	subEWallet = "03"

	poiStatic  = "11"
	poiDynamic = "12"

	currencyTHB = "764"
)

// Payload returns the QR payload paying amount to target. A zero amount
// produces a static payload where the payer enters the amount.
func Payload(target string, amount decimal.Decimal) (string, error) {
	sub, id, err := normalizeTarget(target)
	if err != nil {
		return "", err
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("promptpay: negative amount %s", amount)
	}

	poi := poiStatic
	if amount.IsPositive() {
		poi = poiDynamic
	}

	var b strings.Builder
	b.WriteString(field(tagPayloadFormat, "01"))
	b.WriteString(field(tagPOIMethod, poi))
	b.WriteString(field(tagMerchantBOT, field("00", aidPromptPay)+field(sub, id)))
	b.WriteString(field(tagCountry, "TH"))
	b.WriteString(field(tagCurrency, currencyTHB))
	if amount.IsPositive() {
		b.WriteString(field(tagAmount, amount.StringFixed(2)))
	}
	b.WriteString(tagCRC + "04")
	b.WriteString(fmt.Sprintf("%04X", CRC16([]byte(b.String()))))
	return b.String(), nil
}

func field(tag, value string) string {
	return fmt.Sprintf("%s%02d%s", tag, len(value), value)
}

// normalizeTarget maps a PromptPay id to its sub-tag and wire form.
// Phone numbers become 0066XXXXXXXXX (13 digits).
func normalizeTarget(target string) (string, string, error) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, target)

	switch {
	case len(digits) == 15:
		return subEWallet, digits, nil
	case len(digits) == 13:
		return subTaxID, digits, nil
	case len(digits) == 10 && digits[0] == '0':
		return subPhone, "0066" + digits[1:], nil
	case len(digits) == 11 && strings.HasPrefix(digits, "66"):
		return subPhone, "00" + digits, nil
	}
	return "", "", ErrInvalidTarget
}

// CRC16 is CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF), as EMVCo requires.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
