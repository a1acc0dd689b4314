package domain

import (
	"testing"
	"time"
)

func TestExpired(t *testing.T) {
	expiresAt := time.Now().UTC()
	c := Challenge{ExpiresAt: expiresAt}

	if c.Expired(expiresAt.Add(-time.Second)) {
		t.Error("before expiry, should not be expired")
	}
	if c.Expired(expiresAt) {
		t.Error("at the expiry instant, should not be expired")
	}
	if !c.Expired(expiresAt.Add(time.Nanosecond)) {
		t.Error("past expiry, should be expired")
	}
}
