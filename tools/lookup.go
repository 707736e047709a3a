// Package tools provides the city lookup functions used by the weather/time
// agent.
package tools

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	swarm "github.com/feiskyer/swarm-tools"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	// timeLayout renders e.g. "2025-05-01 09:30:00 EDT-0400".
	timeLayout = "2006-01-02 15:04:05 MST-0700"
)

var weatherReports = map[string]string{
	"new york": "The weather in New York is sunny with a temperature of 25 degrees Celsius (77 degrees Fahrenheit).",
}

var cityTimezones = map[string]string{
	"new york": "America/New_York",
}

// Lookup answers weather and time questions from static tables.
type Lookup struct {
	logger *zap.Logger
	now    func() time.Time
	zones  map[string]string
}

// NewLookup creates a Lookup. A nil logger disables logging.
func NewLookup(logger *zap.Logger) *Lookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lookup{
		logger: logger.With(zap.String("component", "lookup")),
		now:    time.Now,
		zones:  cityTimezones,
	}
}

// Weather returns the weather report for city.
func (l *Lookup) Weather(city string) map[string]interface{} {
	l.logger.Info("tool called", zap.String("tool", "get_weather"), zap.String("city", city))

	if report, ok := weatherReports[strings.ToLower(strings.TrimSpace(city))]; ok {
		return map[string]interface{}{"status": statusSuccess, "report": report}
	}
	return map[string]interface{}{
		"status":        statusError,
		"error_message": fmt.Sprintf("Weather information for '%s' is not available.", city),
	}
}

// CurrentTime returns the current local time in city.
func (l *Lookup) CurrentTime(city string) map[string]interface{} {
	l.logger.Info("tool called", zap.String("tool", "get_current_time"), zap.String("city", city))

	zone, ok := l.zones[strings.ToLower(strings.TrimSpace(city))]
	if !ok {
		return map[string]interface{}{
			"status":        statusError,
			"error_message": fmt.Sprintf("Sorry, I don't have timezone information for %s.", city),
		}
	}

	loc, err := time.LoadLocation(zone)
	if err != nil {
		return map[string]interface{}{
			"status":        statusError,
			"error_message": fmt.Sprintf("Error getting time for %s: %v", city, err),
		}
	}

	now := l.now().In(loc)
	return map[string]interface{}{
		"status": statusSuccess,
		"report": fmt.Sprintf("The current time in %s is %s", city, now.Format(timeLayout)),
	}
}

// Functions returns get_weather and get_current_time as agent functions.
func (l *Lookup) Functions() []swarm.AgentFunction {
	cityParam := []swarm.Parameter{{
		Name:        "city",
		Description: "Name of the city, e.g. New York",
		Type:        reflect.TypeOf(""),
		Required:    true,
	}}

	return []swarm.AgentFunction{
		swarm.NewAgentFunction(
			"get_weather",
			"Retrieves the current weather report for a specified city.",
			func(_ context.Context, args map[string]interface{}) (interface{}, error) {
				city, err := cityArg(args)
				if err != nil {
					return nil, err
				}
				return l.Weather(city), nil
			},
			cityParam,
		),
		swarm.NewAgentFunction(
			"get_current_time",
			"Returns the current time in a specified city.",
			func(_ context.Context, args map[string]interface{}) (interface{}, error) {
				city, err := cityArg(args)
				if err != nil {
					return nil, err
				}
				return l.CurrentTime(city), nil
			},
			cityParam,
		),
	}
}

func cityArg(args map[string]interface{}) (string, error) {
	city, ok := args["city"].(string)
	if !ok || strings.TrimSpace(city) == "" {
		return "", fmt.Errorf("city not provided")
	}
	return city, nil
}
