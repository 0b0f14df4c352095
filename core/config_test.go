package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_check(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		wantErr bool
	}{
		{name: "positive", ttl: time.Minute},
		{name: "zero never expires", ttl: 0, wantErr: true},
		{name: "negative", ttl: -time.Second, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := NewTestConfig()
			conf.Cache.TTL = tt.ttl
			err := conf.check()
			if tt.wantErr {
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), "CACHE_TTL must be positive")
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
