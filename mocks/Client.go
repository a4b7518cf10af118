package mocks

import "github.com/pdf/goyeelight/common"
import "github.com/stretchr/testify/mock"

import "time"

type Client struct {
	mock.Mock
}

// AddDevice provides a mock function with given fields: _a0
func (_m *Client) AddDevice(_a0 common.Device) error {
	ret := _m.Called(_a0)

	var r0 error
	if rf, ok := ret.Get(0).(func(common.Device) error); ok {
		r0 = rf(_a0)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// RemoveDeviceByID provides a mock function with given fields: _a0
func (_m *Client) RemoveDeviceByID(_a0 string) error {
	ret := _m.Called(_a0)

	var r0 error
	if rf, ok := ret.Get(0).(func(string) error); ok {
		r0 = rf(_a0)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// GetTimeout provides a mock function with given fields:
func (_m *Client) GetTimeout() *time.Duration {
	ret := _m.Called()

	var r0 *time.Duration
	if rf, ok := ret.Get(0).(func() *time.Duration); ok {
		r0 = rf()
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*time.Duration)
		}
	}

	return r0
}
