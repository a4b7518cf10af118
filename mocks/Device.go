package mocks

import "github.com/pdf/goyeelight/common"
import "github.com/stretchr/testify/mock"

type Device struct {
	SubscriptionTarget
	mock.Mock
}

// ID provides a mock function with given fields:
func (_m *Device) ID() string {
	ret := _m.Called()

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Descriptor provides a mock function with given fields:
func (_m *Device) Descriptor() common.DeviceDescriptor {
	ret := _m.Called()

	var r0 common.DeviceDescriptor
	if rf, ok := ret.Get(0).(func() common.DeviceDescriptor); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(common.DeviceDescriptor)
	}

	return r0
}

// CachedProperties provides a mock function with given fields:
func (_m *Device) CachedProperties() common.Properties {
	ret := _m.Called()

	var r0 common.Properties
	if rf, ok := ret.Get(0).(func() common.Properties); ok {
		r0 = rf()
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(common.Properties)
		}
	}

	return r0
}

// Close provides a mock function with given fields:
func (_m *Device) Close() error {
	ret := _m.Called()

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
