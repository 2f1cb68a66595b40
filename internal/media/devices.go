package media

// Devices is the Gateway backed by pion/mediadevices. Capture itself is
// platform-gated (see capture_linux.go); attach/detach are plain sink
// forwarding and work everywhere.
type Devices struct{}

var _ Gateway = (*Devices)(nil)

// NewDevices returns the local capture gateway.
func NewDevices() *Devices { return &Devices{} }

// Attach renders src on sink. Nil sink means no display surface was
// configured for this role; silently skipped.
func (d *Devices) Attach(sink Sink, src Source) {
	if sink == nil || src == nil {
		return
	}
	sink.Attach(src)
}

// Detach clears whatever sink currently renders. Nil-safe.
func (d *Devices) Detach(sink Sink) {
	if sink == nil {
		return
	}
	sink.Detach()
}

// intHint reads an integer mandatory constraint, tolerating the numeric
// types a decoded JSON config produces.
func intHint(c Constraints, key string) (int, bool) {
	v, ok := c.Mandatory[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

// boolHint reads a boolean mandatory constraint.
func boolHint(c Constraints, key string) bool {
	v, ok := c.Mandatory[key].(bool)
	return ok && v
}
