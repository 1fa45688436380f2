package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckHealthAllHealthy(t *testing.T) {
	health := CheckHealth(context.Background(), &chatStub{}, &searchStub{available: true}, nil)

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, StatusHealthy, health.Services[ServiceChat])
	assert.Equal(t, StatusHealthy, health.Services[ServiceSearch])
	assert.False(t, health.Timestamp.IsZero())
}

func TestCheckHealthSearchUnavailableStaysHealthy(t *testing.T) {
	health := CheckHealth(context.Background(), &chatStub{}, &searchStub{}, nil)

	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, StatusUnavailable, health.Services[ServiceSearch])
}

func TestCheckHealthChatFailureIsDegraded(t *testing.T) {
	health := CheckHealth(context.Background(), &chatStub{err: errors.New("down")}, &searchStub{available: true}, nil)

	assert.Equal(t, StatusDegraded, health.Status)
	assert.Equal(t, StatusUnhealthy, health.Services[ServiceChat])
	assert.Equal(t, StatusHealthy, health.Services[ServiceSearch])
}

func TestCheckHealthWithoutChatBackendIsUnhealthy(t *testing.T) {
	health := CheckHealth(context.Background(), nil, nil, nil)

	assert.Equal(t, StatusUnhealthy, health.Status)
	assert.Equal(t, StatusUnknown, health.Services[ServiceChat])
}
