package device

import (
	"encoding/json"
	"sync"

	"github.com/pdf/goyeelight/common"
	"github.com/pdf/goyeelight/protocol/packet"
)

// dispatcher owns the property cache of a bulb and fans changes out to
// subscribers.  Pushed notifications are best effort: anything malformed is
// logged and dropped.
type dispatcher struct {
	id            string
	cache         common.Properties
	subscriptions common.Subscriptions
	sync.RWMutex
}

func newDispatcher(id string) *dispatcher {
	return &dispatcher{
		id:    id,
		cache: make(common.Properties),
	}
}

// Handle folds a props notification into the cache
func (d *dispatcher) Handle(msg *packet.Message) {
	if !msg.IsNotification() {
		common.Log.Debugf("Dropping unsolicited message for %s: method %q", d.id, msg.Method)
		return
	}

	var params map[string]interface{}
	if err := json.Unmarshal(msg.Params, &params); err != nil || params == nil {
		common.Log.Warnf("Dropping malformed notification for %s: %s", d.id, msg.Params)
		return
	}

	changes := make(common.Properties, len(params))
	for name, raw := range params {
		value, ok := common.PropertyValue(raw)
		if !ok {
			common.Log.Warnf("Dropping notification for %s, %s has a non-scalar value: %s", d.id, name, msg.Params)
			return
		}
		if !common.KnownProperty(name) {
			common.Log.Debugf("Ignoring unknown property %s=%s for %s", name, value, d.id)
			continue
		}
		changes[name] = value
	}

	d.Merge(changes)
}

// Merge updates the cache with props, last write wins, and publishes them
func (d *dispatcher) Merge(props common.Properties) {
	if len(props) == 0 {
		return
	}
	d.Lock()
	for name, value := range props {
		d.cache[name] = value
	}
	d.Unlock()

	d.subscriptions.Publish(common.EventUpdateProperties{ID: d.id, Changes: props.Copy()})
}

// Clear forgets every cached property
func (d *dispatcher) Clear() {
	d.Lock()
	d.cache = make(common.Properties)
	d.Unlock()
}

// Snapshot returns a copy of the cache
func (d *dispatcher) Snapshot() common.Properties {
	d.RLock()
	defer d.RUnlock()
	return d.cache.Copy()
}

// Get returns a single cached property
func (d *dispatcher) Get(name string) (string, bool) {
	d.RLock()
	defer d.RUnlock()
	v, ok := d.cache[name]
	return v, ok
}
