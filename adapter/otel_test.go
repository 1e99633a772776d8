package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/srediag/shmem-region/region"
)

func TestWithOTel(t *testing.T) {
	conf := WithOTel(region.Config{Name: "otel-wired", Version: 1})
	assert.NotNil(t, conf.Meter)
	assert.NotNil(t, conf.Tracer)
	// Everything else passes through untouched.
	assert.Equal(t, "otel-wired", conf.Name)
	assert.EqualValues(t, 1, conf.Version)
}
