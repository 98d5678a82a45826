package connect

import "time"

// loginRequest is the credential payload for the authentication endpoint.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// loginResponse carries the tokens issued on successful authentication.
type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	IDToken      string `json:"idToken,omitempty"`
}

// apiError is the error envelope returned by the Connect API.
type apiError struct {
	Error       string `json:"error"`
	Description string `json:"errorDescription,omitempty"`
}

// garageResponse lists the vehicles enrolled on the account.
type garageResponse struct {
	Vehicles []garageVehicle `json:"vehicles"`
}

type garageVehicle struct {
	VIN           string        `json:"vin"`
	Nickname      string        `json:"name,omitempty"`
	Specification specification `json:"specification"`
}

type specification struct {
	Model     string `json:"model"`
	ModelYear string `json:"modelYear"`
	TrimLevel string `json:"trimLevel,omitempty"`
}

// VehicleRecord is the raw, denormalized state of one vehicle as reported
// by the Connect API. Facets the vehicle does not report are nil.
type VehicleRecord struct {
	VIN       string
	Nickname  string
	Model     string
	ModelYear string
	Status    VehicleStatus
}

// VehicleStatus is the per-VIN status document. All facets are optional;
// the set of reported facets may change between refreshes as vehicle
// capabilities and connectivity change.
type VehicleStatus struct {
	Battery       *BatteryStatus       `json:"battery,omitempty"`
	Range         *RangeStatus         `json:"range,omitempty"`
	Odometer      *OdometerStatus      `json:"odometer,omitempty"`
	Charger       *ChargerStatus       `json:"charger,omitempty"`
	Doors         *DoorsStatus         `json:"doors,omitempty"`
	Windows       *WindowsStatus       `json:"windows,omitempty"`
	ParkingHeater *ParkingHeaterStatus `json:"parkingHeater,omitempty"`
	Position      *PositionStatus      `json:"position,omitempty"`
	Timers        []DepartureTimer     `json:"departureTimers,omitempty"`
	LastUpdated   time.Time            `json:"lastUpdated"`
}

// BatteryStatus reports the high-voltage battery state.
type BatteryStatus struct {
	LevelPercent           int    `json:"levelPercent"`
	ChargingState          string `json:"chargingState"` // charging, idle, error
	RemainingChargeMinutes *int   `json:"remainingChargeMinutes,omitempty"`
}

// Charging reports whether the battery is actively charging.
func (b *BatteryStatus) Charging() bool {
	return b.ChargingState == "charging"
}

// RangeStatus reports remaining range in kilometers.
type RangeStatus struct {
	ElectricKM float64 `json:"electricKm"`
	TotalKM    float64 `json:"totalKm"`
}

// OdometerStatus reports the odometer reading in kilometers.
type OdometerStatus struct {
	KM float64 `json:"km"`
}

// ChargerStatus reports charger settings and cable state.
type ChargerStatus struct {
	ChargeLimitPercent  int  `json:"chargeLimitPercent"`
	MaxChargeCurrentAC  int  `json:"maxChargeCurrentAc"`
	CableConnected      bool `json:"cableConnected"`
	ExternalPowerSupply bool `json:"externalPowerSupply"`
}

// DoorsStatus reports lock and open state of the doors and trunk.
type DoorsStatus struct {
	Locked      bool `json:"locked"`
	AnyDoorOpen bool `json:"anyDoorOpen"`
	TrunkOpen   bool `json:"trunkOpen"`
}

// WindowsStatus reports whether all windows are closed.
type WindowsStatus struct {
	AllClosed bool `json:"allClosed"`
}

// ParkingHeaterStatus reports the auxiliary heater state.
type ParkingHeaterStatus struct {
	Active          bool `json:"active"`
	DurationMinutes int  `json:"durationMinutes"`
}

// PositionStatus reports the last known parking position.
type PositionStatus struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	ParkedAt  time.Time `json:"parkedAt"`
}

// DepartureTimer is one of the three departure schedule slots.
type DepartureTimer struct {
	ID        int    `json:"id"`
	Enabled   bool   `json:"enabled"`
	Recurring bool   `json:"recurring"`
	Time      string `json:"time"` // HH:MM
	Date      string `json:"date"` // YYYY-MM-DD, single-shot timers only
	Days      string `json:"days"` // 7-character weekday mask, e.g. "yynnnny"
}

// Schedule is the payload for programming a departure timer slot.
type Schedule struct {
	Enabled   bool   `json:"enabled"`
	Recurring bool   `json:"recurring"`
	Time      string `json:"time"`
	Date      string `json:"date"`
	Days      string `json:"days"`
}

// actionResponse is the outcome envelope returned by remote action
// endpoints. The service reports rejection in-band rather than with an
// HTTP error status.
type actionResponse struct {
	Status    string `json:"status"` // accepted, rejected
	RequestID string `json:"requestId,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

func (r *actionResponse) accepted() bool {
	return r.Status == "accepted"
}
