// Package instrument models the flat collection of typed vehicle readings
// and controls derived from one raw Connect state record.
package instrument

// Category is the kind of entity an instrument maps to.
type Category string

const (
	CategorySensor        Category = "sensor"
	CategoryBinarySensor  Category = "binary_sensor"
	CategorySwitch        Category = "switch"
	CategoryLock          Category = "lock"
	CategoryDeviceTracker Category = "device_tracker"
)

// Instrument is one observable or controllable facet of a vehicle.
// Its identity within a snapshot is the (VIN, Category, Attribute) tuple.
type Instrument struct {
	VIN        string         `json:"vin"`
	Category   Category       `json:"category"`
	Attribute  string         `json:"attribute"`
	Name       string         `json:"name"`
	Icon       string         `json:"icon,omitempty"`
	Unit       string         `json:"unit,omitempty"`
	Value      Value          `json:"value"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Key identifies an instrument within a snapshot.
type Key struct {
	VIN       string
	Category  Category
	Attribute string
}

// Key returns the instrument's identity tuple.
func (i *Instrument) Key() Key {
	return Key{VIN: i.VIN, Category: i.Category, Attribute: i.Attribute}
}

// EntityID returns the stable external identity of the instrument,
// {vin}-{category}-{attribute}.
func (i *Instrument) EntityID() string {
	return i.VIN + "-" + string(i.Category) + "-" + i.Attribute
}
