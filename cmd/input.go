package cmd

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// series is the YAML input of the ema command.
type series struct {
	Period *int      `yaml:"period"`
	Prices []float64 `yaml:"prices"`
}

// parsePrices parses a comma separated list such as "10,12.5,14".
func parsePrices(list string) ([]float64, error) {
	var out []float64
	for _, field := range strings.Split(list, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "price %q", field)
		}
		out = append(out, v)
	}
	return out, nil
}

// readSeries reads a YAML price series from path.
func readSeries(path string) (*series, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading series")
	}
	var s series
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return &s, nil
}
