package model

// PowerType classifies the customers a tariff applies to.
type PowerType string

const (
	Consumption              PowerType = "consumption"
	InterruptibleConsumption PowerType = "interruptible_consumption"
	ThermalStorage           PowerType = "thermal_storage_consumption"
	BatteryStorage           PowerType = "battery_storage"
	ElectricVehicle          PowerType = "electric_vehicle"
	Production               PowerType = "production"
	SolarProduction          PowerType = "solar_production"
	WindProduction           PowerType = "wind_production"
)

// IsProduction reports whether customers of this type produce energy.
func (p PowerType) IsProduction() bool {
	switch p {
	case Production, SolarProduction, WindProduction:
		return true
	}
	return false
}

// IsStorage reports whether customers of this type can both absorb and
// return energy.
func (p PowerType) IsStorage() bool {
	return p == ThermalStorage || p == BatteryStorage || p == ElectricVehicle
}

// IsInterruptible reports whether load of this type can be curtailed.
func (p PowerType) IsInterruptible() bool {
	return p == InterruptibleConsumption || p.IsStorage()
}

// Valid reports whether p is a known power type.
func (p PowerType) Valid() bool {
	switch p {
	case Consumption, InterruptibleConsumption, ThermalStorage, BatteryStorage,
		ElectricVehicle, Production, SolarProduction, WindProduction:
		return true
	}
	return false
}
