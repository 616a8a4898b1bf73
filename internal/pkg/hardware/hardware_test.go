package hardware

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anicoll/irrigation-controller/internal/pkg/model"
)

type openFunc func(time.Duration) error

func (f openFunc) Open(timeout time.Duration) error { return f(timeout) }
func (f openFunc) Close() error                     { return nil }

func TestChannelTag(t *testing.T) {
	assert.Equal(t, model.Tag("107839//7"), Channel{Serial: 107839, Channel: 7}.Tag())
}

func TestOpenAll(t *testing.T) {
	opened := 0
	ok := openFunc(func(time.Duration) error { opened++; return nil })
	bad := openFunc(func(time.Duration) error { return errors.New("usb gone") })

	assert.NoError(t, OpenAll(time.Second, ok, ok))
	assert.Equal(t, 2, opened)

	err := OpenAll(time.Second, ok, bad, ok)
	assert.ErrorIs(t, err, ErrAttachment)
	assert.Equal(t, 3, opened)
}
