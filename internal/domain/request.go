package domain

import (
	"fmt"
	"strconv"
)

// CDS dataset names.
const (
	DatasetERA5  = "reanalysis-era5-single-levels"
	DatasetSEAS5 = "seasonal-original-single-levels"
)

// Output file names of the static orography fields.
const (
	ERA5OrographyFile  = "orography_era5.grib"
	SEAS5OrographyFile = "orography_seas5.grib"
)

// Request kinds, used in logs, metrics, and download notifications.
const (
	KindOrography = "orography"
	KindForcing   = "forcing"
)

const (
	seas5Centre       = "ecmwf"
	seas5System       = "5"
	leadTimeStepHours = 6
	leadTimeMaxHours  = 5160
)

// Params holds the named parameters of an archive request. Values are
// strings, numbers, or lists of those, exactly as they are sent to the archive.
type Params map[string]any

// Request is one archive retrieval: the dataset to query, its parameters,
// and the file name it is written to inside the output directory.
type Request struct {
	Dataset  string `json:"dataset"`
	Kind     string `json:"kind"`
	Params   Params `json:"params"`
	Filename string `json:"filename"`
	// Month is the data month for forcing requests; zero for orography.
	Month Month `json:"-"`
}

// ForcingVariables returns the surface variables requested from both archives.
func ForcingVariables() []string {
	return []string{
		"mean_sea_level_pressure",
		"surface_solar_radiation_downwards",
		"2m_temperature",
		"total_precipitation",
	}
}

// LeadTimeHours returns the SEAS5 lead times 6, 12, ..., 5160 as strings.
func LeadTimeHours() []string {
	hours := make([]string, 0, leadTimeMaxHours/leadTimeStepHours)
	for h := leadTimeStepHours; h <= leadTimeMaxHours; h += leadTimeStepHours {
		hours = append(hours, strconv.Itoa(h))
	}
	return hours
}

// monthDays lists every calendar day 01-31. Short months are not trimmed;
// the archive skips days that do not exist.
func monthDays() []string {
	days := make([]string, 0, 31)
	for d := 1; d <= 31; d++ {
		days = append(days, fmt.Sprintf("%02d", d))
	}
	return days
}

func dayHours() []string {
	hours := make([]string, 0, 24)
	for h := 0; h < 24; h++ {
		hours = append(hours, fmt.Sprintf("%02d:00", h))
	}
	return hours
}

// ERA5OrographyRequest fetches the ERA5 geopotential at a fixed reference time.
func ERA5OrographyRequest(area Area) Request {
	return Request{
		Dataset: DatasetERA5,
		Kind:    KindOrography,
		Params: Params{
			"product_type": "reanalysis",
			"variable":     "geopotential",
			"area":         area.List(),
			"year":         "2018",
			"month":        "01",
			"day":          "01",
			"time":         "00:00",
			"format":       "grib",
		},
		Filename: ERA5OrographyFile,
	}
}

// SEAS5OrographyRequest fetches the SEAS5 orography at lead time zero.
func SEAS5OrographyRequest(area Area) Request {
	return Request{
		Dataset: DatasetSEAS5,
		Kind:    KindOrography,
		Params: Params{
			"originating_centre": seas5Centre,
			"system":             seas5System,
			"variable":           "orography",
			"area":               area.List(),
			"year":               "2016",
			"month":              "01",
			"day":                "01",
			"leadtime_hour":      "0",
			"format":             "grib",
		},
		Filename: SEAS5OrographyFile,
	}
}

// ERA5ForcingRequest fetches a full month of hourly ERA5 forcing.
func ERA5ForcingRequest(m Month, area Area) Request {
	return Request{
		Dataset: DatasetERA5,
		Kind:    KindForcing,
		Params: Params{
			"product_type": "reanalysis",
			"variable":     ForcingVariables(),
			"year":         m.Year,
			"area":         area.String(),
			"month":        int(m.Month),
			"day":          monthDays(),
			"time":         dayHours(),
			"format":       "netcdf",
		},
		Filename: ForcingFilename("ERA5", m),
		Month:    m,
	}
}

// SEAS5ForcingRequest fetches the SEAS5 forecast started in month m.
func SEAS5ForcingRequest(m Month, area Area) Request {
	return Request{
		Dataset: DatasetSEAS5,
		Kind:    KindForcing,
		Params: Params{
			"originating_centre": seas5Centre,
			"system":             seas5System,
			"variable":           ForcingVariables(),
			"year":               []int{m.Year},
			"area":               area.String(),
			"month":              []int{int(m.Month)},
			"day":                []string{"01"},
			"leadtime_hour":      LeadTimeHours(),
			"format":             "netcdf",
		},
		Filename: ForcingFilename("SEAS5", m),
		Month:    m,
	}
}

// ForcingFilename names a forcing file, e.g. "ERA5_2022_1.nc".
func ForcingFilename(source string, m Month) string {
	return fmt.Sprintf("%s_%d_%d.nc", source, m.Year, int(m.Month))
}

// PlanRequests returns the four requests of a monthly run in execution order:
// both orography fields, then ERA5 for the previous month and SEAS5 for the
// current month.
func PlanRequests(current Month, area Area) []Request {
	return []Request{
		ERA5OrographyRequest(area),
		SEAS5OrographyRequest(area),
		ERA5ForcingRequest(current.Previous(), area),
		SEAS5ForcingRequest(current, area),
	}
}
