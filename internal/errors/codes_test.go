package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestGPXError_ToGRPCStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *GPXError
		want codes.Code
	}{
		{"track not found", TrackNotFound("walk"), codes.NotFound},
		{"track exists", TrackExists("walk"), codes.AlreadyExists},
		{"no destination", NoDestination(), codes.FailedPrecondition},
		{"parse failed", ParseFailed("bad xml", io.ErrUnexpectedEOF), codes.InvalidArgument},
		{"chain broken", ChainBroken(3), codes.DataLoss},
		{"queue stopped", QueueStopped("gpx"), codes.Unavailable},
		{"digest unavailable", DigestUnavailable("md4"), codes.Unavailable},
		{"internal", InternalError("boom", nil), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.ToGRPCStatus().Code())
		})
	}
}

func TestGPXError_Wrapping(t *testing.T) {
	err := ParseFailed("failed to decode gpx", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("load: %w", err)

	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.True(t, IsGPXError(wrapped))
	assert.Equal(t, ErrCodeParseFailed, GetCode(wrapped))
	assert.Equal(t, "failed to decode gpx: unexpected EOF", err.Error())
}

func TestGetCode_ForeignError(t *testing.T) {
	assert.False(t, IsGPXError(io.EOF))
	assert.Equal(t, ErrCodeInternal, GetCode(io.EOF))
}

func TestWithDetail(t *testing.T) {
	err := TrackNotFound("walk")
	assert.Equal(t, "walk", err.Details["track"])

	err = ChainBroken(7)
	assert.Equal(t, 7, err.Details["points"])
}
