package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryableHTTPStatus(tc.code), "code %d", tc.code)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifyError(t *testing.T) {
	kind, retry := ClassifyError(fmt.Errorf("call: %w", context.DeadlineExceeded))
	assert.Equal(t, KindTimeout, kind)
	assert.True(t, retry)

	kind, retry = ClassifyError(context.Canceled)
	assert.Equal(t, KindCanceled, kind)
	assert.False(t, retry)

	kind, _ = ClassifyError(timeoutErr{})
	assert.Equal(t, KindTimeout, kind)

	kind, _ = ClassifyError(errors.New("bad request"))
	assert.Equal(t, KindAPI, kind)

	kind, retry = ClassifyError(nil)
	assert.Empty(t, kind)
	assert.False(t, retry)
}
