// Package theme maps provider condition codes plus a day/night flag to a
// discrete presentation theme. Resolution is a pure function: total,
// deterministic, and incapable of failing.
package theme

// ID identifies one of the fixed presentation themes.
type ID string

const (
	Clear        ID = "Clear"
	ClearNight   ID = "ClearNight"
	Clouds       ID = "Clouds"
	CloudsNight  ID = "CloudsNight"
	Rain         ID = "Rain"
	RainNight    ID = "RainNight"
	Drizzle      ID = "Drizzle"
	Thunderstorm ID = "Thunderstorm"
	Snow         ID = "Snow"
	Mist         ID = "Mist"
	Default      ID = "Default"
)

// IDs lists every member of the enumeration.
func IDs() []ID {
	return []ID{
		Clear, ClearNight, Clouds, CloudsNight, Rain, RainNight,
		Drizzle, Thunderstorm, Snow, Mist, Default,
	}
}

// Descriptor carries the presentation attributes of a theme. Gradient stops
// are hex colors, text/accent/glass are presentation-layer color tokens.
type Descriptor struct {
	ID          ID
	Gradient    [3]string
	IconSuffix  string // "d" or "n", matching the provider's icon naming
	TextColor   string
	AccentColor string
	GlassColor  string
}

var descriptors = map[ID]Descriptor{
	Clear: {
		ID:          Clear,
		Gradient:    [3]string{"#FFD200", "#F7971E", "#FFD200"}, // warm sunny
		IconSuffix:  "d",
		TextColor:   "amber-100",
		AccentColor: "yellow-300",
		GlassColor:  "amber-500/10",
	},
	ClearNight: {
		ID:          ClearNight,
		Gradient:    [3]string{"#0f2027", "#203a43", "#2c5364"}, // deep night
		IconSuffix:  "n",
		TextColor:   "blue-100",
		AccentColor: "blue-300",
		GlassColor:  "blue-900/10",
	},
	Clouds: {
		ID:          Clouds,
		Gradient:    [3]string{"#8e9eab", "#eef2f3", "#8e9eab"}, // soft cloud
		IconSuffix:  "d",
		TextColor:   "slate-800",
		AccentColor: "blue-500",
		GlassColor:  "white/20",
	},
	CloudsNight: {
		ID:          CloudsNight,
		Gradient:    [3]string{"#232526", "#414345", "#232526"}, // dark metal
		IconSuffix:  "n",
		TextColor:   "gray-300",
		AccentColor: "gray-400",
		GlassColor:  "white/5",
	},
	Rain: {
		ID:          Rain,
		Gradient:    [3]string{"#00c6ff", "#0072ff", "#00c6ff"}, // vibrant blue
		IconSuffix:  "d",
		TextColor:   "blue-50",
		AccentColor: "blue-200",
		GlassColor:  "blue-500/10",
	},
	RainNight: {
		ID:          RainNight,
		Gradient:    [3]string{"#141E30", "#243B55", "#141E30"}, // dark blue
		IconSuffix:  "n",
		TextColor:   "indigo-100",
		AccentColor: "indigo-300",
		GlassColor:  "indigo-900/20",
	},
	Drizzle: {
		ID:          Drizzle,
		Gradient:    [3]string{"#4CA1AF", "#C4E0E5", "#4CA1AF"}, // light shower
		IconSuffix:  "d",
		TextColor:   "cyan-50",
		AccentColor: "cyan-200",
		GlassColor:  "cyan-500/10",
	},
	Thunderstorm: {
		ID:          Thunderstorm,
		Gradient:    [3]string{"#232526", "#414345", "#2C5364"}, // stormy dark
		IconSuffix:  "d",
		TextColor:   "purple-100",
		AccentColor: "yellow-400", // lightning accent
		GlassColor:  "gray-800/30",
	},
	Snow: {
		ID:          Snow,
		Gradient:    [3]string{"#E0EAFC", "#CFDEF3", "#E0EAFC"}, // snowy white
		IconSuffix:  "d",
		TextColor:   "blue-900",
		AccentColor: "blue-500",
		GlassColor:  "white/30",
	},
	Mist: {
		ID:          Mist,
		Gradient:    [3]string{"#3E5151", "#DECBA4", "#3E5151"}, // foggy
		IconSuffix:  "d",
		TextColor:   "gray-100",
		AccentColor: "gray-300",
		GlassColor:  "gray-500/20",
	},
	Default: {
		ID:          Default,
		Gradient:    [3]string{"#4facfe", "#00f2fe", "#4facfe"},
		IconSuffix:  "d",
		TextColor:   "white",
		AccentColor: "white/50",
		GlassColor:  "white/10",
	},
}

// nightVariant maps the buckets that branch on day/night to their night form.
// Drizzle, Thunderstorm, Snow and Mist are day/night-invariant.
var nightVariant = map[ID]ID{
	Clear:  ClearNight,
	Clouds: CloudsNight,
	Rain:   RainNight,
}

// Resolve maps a provider condition code and day flag to a theme. Codes are
// bucketed by the provider's published grouping: 2xx thunderstorm, 3xx
// drizzle, 5xx rain, 6xx snow, 7xx atmosphere, 800 clear, 801-899 clouds.
// Unknown or out-of-range codes resolve to Default regardless of day/night;
// an unrecognized code is not an error.
func Resolve(conditionCode int, isDaytime bool) ID {
	var id ID
	switch {
	case conditionCode >= 200 && conditionCode <= 299:
		id = Thunderstorm
	case conditionCode >= 300 && conditionCode <= 399:
		id = Drizzle
	case conditionCode >= 500 && conditionCode <= 599:
		id = Rain
	case conditionCode >= 600 && conditionCode <= 699:
		id = Snow
	case conditionCode >= 700 && conditionCode <= 799:
		id = Mist
	case conditionCode == 800:
		id = Clear
	case conditionCode >= 801 && conditionCode <= 899:
		id = Clouds
	default:
		return Default
	}

	if !isDaytime {
		if night, ok := nightVariant[id]; ok {
			return night
		}
	}
	return id
}

// Lookup returns the Descriptor for id, falling back to Default for any
// identifier outside the enumeration.
func Lookup(id ID) Descriptor {
	if d, ok := descriptors[id]; ok {
		return d
	}
	return descriptors[Default]
}
