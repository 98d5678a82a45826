package instrument

import (
	"fmt"
	"time"

	"github.com/stefanuc111/homeassistant-skodaconnect/internal/client/connect"
)

// Options fixes the derivation behavior for the lifetime of a
// coordinator: unit system, whether controls are exposed, and the SPIN
// needed for privileged controls.
type Options struct {
	Mutable bool
	SPIN    string
	Convert Conversion
}

// controlsEnabled reports whether mutable, privileged controls (locks,
// heater switch) may be derived.
func (o Options) controlsEnabled() bool {
	return o.Mutable && o.SPIN != ""
}

// Derive flattens one raw vehicle record into an instrument snapshot.
// Facets the record does not report are omitted entirely, so instruments
// may appear and disappear between snapshots as capabilities change.
// Unit conversion happens here; consumers see converted values only.
func Derive(rec connect.VehicleRecord, opts Options) (*Snapshot, error) {
	status := rec.Status
	taken := status.LastUpdated
	if taken.IsZero() {
		taken = time.Now()
	}

	common := map[string]any{
		"model":      rec.Model,
		"model_year": rec.ModelYear,
	}
	if status.Odometer != nil {
		odo, unit := opts.Convert.Distance(status.Odometer.KM)
		common["odometer"] = fmt.Sprintf("%.1f %s", odo, unit)
	}

	b := builder{vin: rec.VIN, common: common, opts: opts}

	if bat := status.Battery; bat != nil {
		b.sensor("battery_level", "Battery level", IntValue(int64(bat.LevelPercent)), "%",
			batteryIcon(bat.LevelPercent, bat.Charging()))
		b.binary("charging", "Charging", bat.Charging(), "mdi:ev-station")
		if bat.RemainingChargeMinutes != nil {
			b.sensor("charging_time_left", "Charging time left",
				IntValue(int64(*bat.RemainingChargeMinutes)), "min", "mdi:battery-clock")
		}
	}

	if rng := status.Range; rng != nil {
		value, unit := opts.Convert.Distance(rng.ElectricKM)
		b.sensor("electric_range", "Electric range", FloatValue(value), unit, "mdi:car-electric")
		if rng.TotalKM > 0 {
			value, unit = opts.Convert.Distance(rng.TotalKM)
			b.sensor("range", "Range", FloatValue(value), unit, "mdi:map-marker-distance")
		}
	}

	if odo := status.Odometer; odo != nil {
		value, unit := opts.Convert.Distance(odo.KM)
		b.sensor("odometer", "Odometer", FloatValue(value), unit, "mdi:counter")
	}

	if chg := status.Charger; chg != nil {
		b.sensor("charge_limit", "Charge limit", IntValue(int64(chg.ChargeLimitPercent)), "%", "mdi:battery-lock")
		b.sensor("max_charge_current", "Maximum charge current", IntValue(int64(chg.MaxChargeCurrentAC)), "A", "mdi:current-ac")
		b.binary("charger_connected", "Charger connected", chg.CableConnected, "mdi:power-plug")
		b.binary("external_power", "External power", chg.ExternalPowerSupply, "mdi:transmission-tower")
	}

	if doors := status.Doors; doors != nil {
		b.binary("doors_open", "Doors open", doors.AnyDoorOpen, "mdi:car-door")
		b.binary("trunk_open", "Trunk open", doors.TrunkOpen, "mdi:car-back")
		if opts.controlsEnabled() {
			b.add(CategoryLock, "door_lock", "Door lock", BoolValue(doors.Locked), "", "mdi:car-key", nil)
		} else {
			b.binary("door_locked", "Doors locked", doors.Locked, "mdi:lock")
		}
	}

	if win := status.Windows; win != nil {
		b.binary("windows_closed", "Windows closed", win.AllClosed, "mdi:window-closed")
	}

	if ph := status.ParkingHeater; ph != nil {
		if opts.controlsEnabled() {
			b.add(CategorySwitch, "parking_heater", "Parking heater", BoolValue(ph.Active), "", "mdi:radiator", nil)
		} else {
			b.binary("parking_heater", "Parking heater", ph.Active, "mdi:radiator")
		}
		b.sensor("pheater_duration", "Parking heater duration", IntValue(int64(ph.DurationMinutes)), "min", "mdi:timer")
	}

	if pos := status.Position; pos != nil {
		b.add(CategoryDeviceTracker, "position", "Position", StringValue("parked"), "", "mdi:crosshairs-gps",
			map[string]any{
				"latitude":  pos.Latitude,
				"longitude": pos.Longitude,
				"parked_at": pos.ParkedAt,
			})
	}

	for _, timer := range status.Timers {
		b.add(CategorySensor, fmt.Sprintf("departure_timer_%d", timer.ID),
			fmt.Sprintf("Departure timer %d", timer.ID),
			StringValue(timer.Time), "", "mdi:calendar-clock",
			map[string]any{
				"enabled":   timer.Enabled,
				"recurring": timer.Recurring,
				"date":      timer.Date,
				"days":      timer.Days,
			})
	}

	return NewSnapshot(rec.VIN, rec.Model, rec.ModelYear, rec.Nickname, taken, b.instruments)
}

// builder accumulates instruments with the shared attributes attached.
type builder struct {
	vin         string
	common      map[string]any
	opts        Options
	instruments []Instrument
}

func (b *builder) add(category Category, attribute, name string, value Value, unit, icon string, extra map[string]any) {
	attrs := make(map[string]any, len(b.common)+len(extra))
	for k, v := range b.common {
		attrs[k] = v
	}
	for k, v := range extra {
		attrs[k] = v
	}

	b.instruments = append(b.instruments, Instrument{
		VIN:        b.vin,
		Category:   category,
		Attribute:  attribute,
		Name:       name,
		Icon:       icon,
		Unit:       unit,
		Value:      value,
		Attributes: attrs,
	})
}

func (b *builder) sensor(attribute, name string, value Value, unit, icon string) {
	b.add(CategorySensor, attribute, name, value, unit, icon, nil)
}

func (b *builder) binary(attribute, name string, state bool, icon string) {
	b.add(CategoryBinarySensor, attribute, name, BoolValue(state), "", icon, nil)
}
