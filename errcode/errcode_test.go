package errcode

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

var errSample = New(CodeEffectsMissing, "no effects")

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("instantiating: %w", New(CodeEffectsMissing, "other message"))
	if !errors.Is(wrapped, errSample) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(wrapped, New(CodeSourcesMissing, "no effects")) {
		t.Error("errors with different codes should not match")
	}
}

func TestWrapUnwraps(t *testing.T) {
	err := Wrap(CodeLoad, "loading scene", fs.ErrNotExist)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Error("cause not reachable")
	}
	if got := err.Error(); got != "loading scene: file does not exist" {
		t.Errorf("message = %q", got)
	}
}

type typed struct{}

func (typed) Error() string { return "typed" }
func (typed) Code() Code    { return CodeCacheMiss }

func TestOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{errSample, CodeEffectsMissing},
		{fmt.Errorf("ctx: %w", typed{}), CodeCacheMiss},
		{errors.New("plain"), CodeUnknown},
		{nil, CodeUnknown},
	}
	for _, tt := range tests {
		if got := Of(tt.err); got != tt.want {
			t.Errorf("Of(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
