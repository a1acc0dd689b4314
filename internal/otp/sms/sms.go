// Package sms delivers verification codes over SMS. Delivery is best effort:
// the challenge lifecycle does not depend on the gateway acknowledging.
package sms

import "context"

// Sender delivers a verification code to a phone number.
type Sender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// NopSender discards codes. Used in dev mode where codes are read back
// through the dev endpoint instead of a real gateway.
type NopSender struct{}

func (NopSender) SendCode(ctx context.Context, phone, code string) error { return nil }
