package common

// EventNewDevice is emitted by a Client when it discovers a new Device
type EventNewDevice struct {
	Device Device
}

// EventExpiredDevice is emitted by a Client when a Device is removed
type EventExpiredDevice struct {
	Device Device
}

// EventUpdateProperties is emitted by a Device when the bulb pushes a state
// change, or a property query returns new values.  Changes only holds the
// properties that were present in the update.
type EventUpdateProperties struct {
	ID      string
	Changes Properties
}

// EventConnected is emitted by a Device once its control connection is up
type EventConnected struct {
	ID string
}

// EventDisconnected is emitted by a Device when its control connection goes
// away, either on request or because of a transport failure
type EventDisconnected struct {
	ID  string
	Err error
}

// EventMusicMode is emitted by a Device when it enters or leaves music mode
type EventMusicMode struct {
	ID      string
	Enabled bool
}
