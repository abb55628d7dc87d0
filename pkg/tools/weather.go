package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/teslashibe/go-vocalix/internal/httpc"
)

type weather struct {
	cfg    Config
	logger *slog.Logger
}

type weatherResponse struct {
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

func (w *weather) handle(ctx context.Context, args map[string]any) (string, error) {
	city := strings.TrimSpace(stringArg(args, "city"))
	if city == "" {
		city = strings.TrimSpace(stringArg(args, "location"))
	}
	if city == "" {
		return "Please specify a city for the weather report.", nil
	}
	if w.cfg.OpenWeatherKey == "" {
		return "Weather information is not available: no OpenWeather API key was provided.", nil
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", w.cfg.OpenWeatherKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.cfg.WeatherURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	data, err := send(w.cfg.HTTPClient, req)
	if err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return fmt.Sprintf("I could not find weather data for %s.", city), nil
		}
		return "", fmt.Errorf("tools: weather: %w", err)
	}

	var wr weatherResponse
	if err := json.Unmarshal(data, &wr); err != nil {
		return "", fmt.Errorf("tools: weather: decode: %w", err)
	}

	desc := "unknown conditions"
	if len(wr.Weather) > 0 {
		desc = wr.Weather[0].Description
	}
	place := wr.Name
	if wr.Sys.Country != "" {
		place += ", " + wr.Sys.Country
	}

	w.logger.Info("weather lookup", "city", city, "temp", wr.Main.Temp)
	return fmt.Sprintf("Current weather in %s: %s, %.1f°C (feels like %.1f°C), humidity %d%%, wind %.1f m/s.",
		place, desc, wr.Main.Temp, wr.Main.FeelsLike, wr.Main.Humidity, wr.Wind.Speed), nil
}
