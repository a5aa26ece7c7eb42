package lobby

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestCode_Class(t *testing.T) {
	tests := []struct {
		code  Code
		class Class
		grpc  codes.Code
	}{
		{CodeSessionNotFound, ClassNotFound, codes.NotFound},
		{CodeBoxItemNotFound, ClassNotFound, codes.NotFound},
		{CodePlayerAlreadyExists, ClassConflict, codes.AlreadyExists},
		{CodeAlreadyLaunched, ClassConflict, codes.FailedPrecondition},
		{CodeUnknownEvent, ClassInvalid, codes.InvalidArgument},
		{CodeUnknown, ClassUnknown, codes.Unknown},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.class, tt.code.Class())
			assert.Equal(t, tt.grpc, tt.code.GRPCCode())
		})
	}
}

func TestAsError(t *testing.T) {
	domain := errGroupNotFound(3)
	wrapped := fmt.Errorf("handling: %w", domain)
	assert.Same(t, domain, AsError(wrapped))
	assert.True(t, IsCode(wrapped, CodeGroupNotFound))

	foreign := errors.New("boom")
	e := AsError(foreign)
	assert.Equal(t, CodeUnknown, e.Code)
	assert.ErrorIs(t, e, foreign)
	assert.False(t, IsCode(nil, CodeUnknown))
}

func TestError_Message(t *testing.T) {
	assert.Equal(t, "alreadyLaunched", NewError(CodeAlreadyLaunched, nil).Error())
	assert.Contains(t, errVehicleNotFound("boat").Error(), "boat")
}
