package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func ok(name string) Checker {
	return NewFuncChecker(name, func(context.Context) error { return nil })
}

func failing(name string) Checker {
	return NewFuncChecker(name, func(context.Context) error { return errors.New(name + " down") })
}

func TestCheckerRegistry_Status(t *testing.T) {
	tests := []struct {
		name     string
		required []Checker
		optional []Checker
		want     Status
	}{
		{name: "empty", want: StatusHealthy},
		{name: "all ok", required: []Checker{ok("a"), ok("b")}, want: StatusHealthy},
		{name: "optional failing", required: []Checker{ok("a")}, optional: []Checker{failing("b")}, want: StatusDegraded},
		{name: "required failing", required: []Checker{failing("a")}, optional: []Checker{failing("b")}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry()
			for _, c := range tt.required {
				r.Register(c)
			}
			for _, c := range tt.optional {
				r.RegisterOptional(c)
			}

			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Len(t, h.Checks, len(tt.required)+len(tt.optional))
		})
	}
}

func TestHealth_Summary(t *testing.T) {
	r := NewCheckerRegistry()
	r.Register(ok("bus"))
	r.RegisterOptional(failing("redis"))

	h := r.Check(context.Background())
	assert.Equal(t, map[string]string{"bus": "healthy", "redis": "degraded"}, h.Summary())
	assert.Equal(t, "redis down", h.Checks["redis"].Message)
}

func TestKafkaChecker_NoBrokers(t *testing.T) {
	err := NewKafkaChecker(nil).Check(context.Background())
	assert.Error(t, err)
}
