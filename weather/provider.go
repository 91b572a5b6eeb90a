package weather

import "time"

// Provider response shapes, limited to the fields consumed.

type owmCurrentResponse struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		ID          int    `json:"id"`
		Main        string `json:"main"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  int     `json:"pressure"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Visibility int `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   int     `json:"deg"`
	} `json:"wind"`
	Dt  int64 `json:"dt"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Name string `json:"name"`
}

type owmForecastResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			Temp      float64 `json:"temp"`
			FeelsLike float64 `json:"feels_like"`
			TempMin   float64 `json:"temp_min"`
			TempMax   float64 `json:"temp_max"`
			Humidity  int     `json:"humidity"`
		} `json:"main"`
		Weather []struct {
			ID   int    `json:"id"`
			Main string `json:"main"`
			Icon string `json:"icon"`
		} `json:"weather"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
		Pop float64 `json:"pop"`
	} `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
}

type owmAirResponse struct {
	List []struct {
		Dt   int64 `json:"dt"`
		Main struct {
			AQI int `json:"aqi"`
		} `json:"main"`
		Components struct {
			PM25 float64 `json:"pm2_5"`
			PM10 float64 `json:"pm10"`
			O3   float64 `json:"o3"`
			NO2  float64 `json:"no2"`
		} `json:"components"`
	} `json:"list"`
}

type owmGeoResult struct {
	Name    string  `json:"name"`
	State   string  `json:"state"`
	Country string  `json:"country"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

func mapCurrent(r owmCurrentResponse) Current {
	cur := Current{
		City:        r.Name,
		Country:     r.Sys.Country,
		Coords:      Coordinates{Lat: r.Coord.Lat, Lon: r.Coord.Lon},
		Temperature: r.Main.Temp,
		FeelsLike:   r.Main.FeelsLike,
		TempMin:     r.Main.TempMin,
		TempMax:     r.Main.TempMax,
		Humidity:    r.Main.Humidity,
		Pressure:    r.Main.Pressure,
		Visibility:  r.Visibility,
		WindSpeed:   r.Wind.Speed,
		WindDeg:     r.Wind.Deg,
		ObservedAt:  time.Unix(r.Dt, 0).UTC(),
	}
	if r.Sys.Sunrise > 0 {
		cur.Sunrise = time.Unix(r.Sys.Sunrise, 0).UTC()
	}
	if r.Sys.Sunset > 0 {
		cur.Sunset = time.Unix(r.Sys.Sunset, 0).UTC()
	}
	if len(r.Weather) > 0 {
		cur.ConditionID = r.Weather[0].ID
		cur.Condition = r.Weather[0].Main
		cur.Description = r.Weather[0].Description
		cur.Icon = r.Weather[0].Icon
	}
	return cur
}

func mapForecast(r owmForecastResponse) Forecast {
	fc := Forecast{
		City:    r.City.Name,
		Country: r.City.Country,
		Entries: make([]ForecastEntry, 0, len(r.List)),
	}
	for _, item := range r.List {
		entry := ForecastEntry{
			Time:              time.Unix(item.Dt, 0).UTC(),
			Temperature:       item.Main.Temp,
			FeelsLike:         item.Main.FeelsLike,
			TempMin:           item.Main.TempMin,
			TempMax:           item.Main.TempMax,
			Humidity:          item.Main.Humidity,
			WindSpeed:         item.Wind.Speed,
			PrecipProbability: item.Pop,
		}
		if len(item.Weather) > 0 {
			entry.ConditionID = item.Weather[0].ID
			entry.Condition = item.Weather[0].Main
			entry.Icon = item.Weather[0].Icon
		}
		fc.Entries = append(fc.Entries, entry)
	}
	return fc
}

func mapAir(r owmAirResponse) AirQuality {
	if len(r.List) == 0 {
		return AirQuality{}
	}
	first := r.List[0]
	return AirQuality{
		Index:      first.Main.AQI,
		PM25:       first.Components.PM25,
		PM10:       first.Components.PM10,
		O3:         first.Components.O3,
		NO2:        first.Components.NO2,
		MeasuredAt: time.Unix(first.Dt, 0).UTC(),
	}
}
