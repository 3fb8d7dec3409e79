// Package domain models the monthly forcing download for a wflow-style
// hydrological model: which month to fetch, which area to cut out, and the
// exact archive requests that are sent to the Copernicus Climate Data Store.
//
// # Archives
//
// Two CDS datasets are queried:
//
//	reanalysis-era5-single-levels     ERA5 hourly reanalysis ("reanalysis archive")
//	seasonal-original-single-levels   ECMWF SEAS5 system 5 ("seasonal-forecast archive")
//
// ERA5 is requested for the month before the model date, since the most recent
// month is not complete yet. SEAS5 is requested for the model month itself and
// covers the forecast horizon from its nominal start on day 01.
//
// # Area conventions
//
// The area is always sent as south/west/north/east. Two encodings are used:
//
//	orography requests   [south, west, north, east] as a JSON number list
//	forcing requests     "45.50/4.00/53.00/13.00" (two decimals, '/'-separated)
//
// Edges are snapped to the 0.5° grid because that is the native resolution of
// SEAS5; ERA5 (0.25°) is cut on the same grid so both files line up.
//
// # Lead times
//
// SEAS5 lead times are hour offsets from the nominal start. The archive does
// not accept a range, so every step from 6 to 5160 (860 values, ~215 days) is
// listed explicitly. See [LeadTimeHours].
//
// # File names
//
// Forcing files are named "ERA5_{year}_{month}.nc" and "SEAS5_{year}_{month}.nc"
// with the month NOT zero-padded ("ERA5_2022_1.nc"). Downstream scripts glob for
// these names, so the format is part of the contract.
package domain
