package types

import (
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestStatusValid(t *testing.T) {
	assert.True(t, TestStatusPass.Valid())
	assert.True(t, TestStatusFail.Valid())
	assert.True(t, TestStatusSkip.Valid())
	assert.True(t, TestStatusError.Valid())
	assert.False(t, TestStatus("bogus").Valid())
}

func TestModuleDescriptorOrdering(t *testing.T) {
	a := ModuleDescriptor{Service: "orders", Ordinal: 1, Name: "01_create"}
	b := ModuleDescriptor{Service: "orders", Ordinal: 2, Name: "02_fetch"}
	c := ModuleDescriptor{Service: "orders", Ordinal: 2, Name: "02_list"}

	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c)) // ties broken by name
	assert.Equal(t, "orders/01_create", a.ID())
}

func TestSkipErrorDetection(t *testing.T) {
	err := NewSkipError("maintenance window")
	assert.True(t, IsSkip(err))
	assert.True(t, IsSkip(errors.Wrap(err, "wrapped")))
	assert.False(t, IsSkip(fmt.Errorf("other")))
	assert.False(t, IsSkip(nil))
	assert.Contains(t, err.Error(), "maintenance window")
}

func TestAssertionErrorDetection(t *testing.T) {
	err := NewAssertionError("status", 200, 503)
	assert.True(t, IsAssertionFailure(err))
	assert.True(t, IsAssertionFailure(errors.Wrap(err, "step 2")))
	assert.False(t, IsAssertionFailure(fmt.Errorf("other")))
	assert.False(t, IsAssertionFailure(nil))
	assert.Contains(t, err.Error(), "expected 200, got 503")
}

func TestServiceDescriptorValidate(t *testing.T) {
	valid := ServiceDescriptor{Name: "orders", BaseURL: "http://localhost:8080"}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name string
		svc  ServiceDescriptor
	}{
		{"missing name", ServiceDescriptor{BaseURL: "http://localhost:8080"}},
		{"missing base url", ServiceDescriptor{Name: "orders"}},
		{"no scheme", ServiceDescriptor{Name: "orders", BaseURL: "localhost:8080"}},
		{"negative max wait", ServiceDescriptor{
			Name: "orders", BaseURL: "http://localhost:8080",
			RateLimit: RateLimitPolicy{MaxWait: -1},
		}},
	}
	for _, tc := range tests {
		assert.Error(t, tc.svc.Validate(), tc.name)
	}
}

func TestRetryPolicyDefaults(t *testing.T) {
	p := RetryPolicy{}.WithDefaults()
	def := DefaultRetryPolicy()
	assert.Equal(t, def.MaxAttempts, p.MaxAttempts)
	assert.Equal(t, def.BaseDelay, p.BaseDelay)
	assert.Equal(t, def.RetryableStatuses, p.RetryableStatuses)

	// Configured values survive.
	p = RetryPolicy{MaxAttempts: 7, RetryableStatuses: []int{500}}.WithDefaults()
	assert.Equal(t, 7, p.MaxAttempts)
	assert.Equal(t, []int{500}, p.RetryableStatuses)
	assert.True(t, p.Retryable(500))
	assert.False(t, p.Retryable(503))
}

func TestRateLimitPolicyEnabled(t *testing.T) {
	assert.False(t, RateLimitPolicy{}.Enabled())
	assert.False(t, RateLimitPolicy{Capacity: 5}.Enabled())
	assert.False(t, RateLimitPolicy{RefillPerSecond: 1}.Enabled())
	assert.True(t, RateLimitPolicy{Capacity: 5, RefillPerSecond: 1}.Enabled())
}
