package ports_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/canopy/pkg/domain"
	"github.com/aretw0/canopy/pkg/ports"
	"github.com/stretchr/testify/assert"
)

func TestTee(t *testing.T) {
	var seen []string
	record := func(name string, res any, err error) ports.Performer {
		return ports.PerformerFunc(func(_ context.Context, call domain.Call) (any, error) {
			seen = append(seen, name+":"+call.Method)
			return res, err
		})
	}
	boom := errors.New("mirror down")

	p := ports.Tee(record("primary", "ref", nil), record("mirror", "ignored", boom))
	res, err := p.Perform(context.Background(), domain.Call{Method: domain.MethodSend})

	assert.Equal(t, "ref", res)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"primary:send_message", "mirror:send_message"}, seen)
}

func TestTee_Single(t *testing.T) {
	primary := ports.PerformerFunc(func(context.Context, domain.Call) (any, error) { return 1, nil })
	res, err := ports.Tee(primary).Perform(context.Background(), domain.Call{})
	assert.NoError(t, err)
	assert.Equal(t, 1, res)
}
