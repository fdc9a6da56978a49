package unit

// Built-in families. Their order decides which family wins Select.
var (
	Frequency = NewFamily("frequency", "Hz",
		Scale("bpm", 1.0/60),
		Scale("1/min", 1.0/60),
	)
	Temperature = NewFamily("temperature", "°K",
		Affine("°C", 1, 273.15),
		Affine("°F", 5.0/9, 273.15-32*5.0/9),
	)
	Pressure = NewFamily("pressure", "Pa",
		Scale("mmHg", 133.322),
		Scale("bar", 1e5),
		Scale("mbar", 1e2),
		Scale("cmH2O", 98.0665),
	)
	Length = NewFamily("length", "m",
		Scale("cm", 1e-2),
		Scale("mm", 1e-3),
	)
	Mass = NewFamily("mass", "kg",
		Scale("g", 1e-3),
		Scale("mg", 1e-6),
		Scale("mcg", 1e-9),
	)
	Time = NewFamily("time", "s",
		Scale("min", 60),
		Scale("h", 3600),
		Scale("d", 86400),
		Scale("year", 365.25*86400),
	)
	Volume = NewFamily("volume", "l",
		Scale("ml", 1e-3),
		Scale("dl", 1e-1),
	)
	Concentration = NewFamily("concentration", "mg/dl",
		Scale("g/dl", 1e3),
		Scale("g/l", 1e2),
		Scale("mg/l", 1e-1),
	)
	Units = NewFamily("unit", "unit",
		Scale("milliunit", 1e-3),
		Scale("%", 1e-2),
	)
	None = NewFamily("none", "")
)

// Default returns a registry with every built-in family.
func Default() *Registry {
	return NewRegistry(Frequency, Temperature, Pressure, Length, Mass, Time, Volume, Concentration, Units, None)
}
