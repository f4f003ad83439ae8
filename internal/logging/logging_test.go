package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONOutputCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Level: "debug", Format: "json"}, &buf)

	Component(logger, "fetcher").WithField("attempt", 2).Info("fetching daily weather")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fetcher", line["component"])
	assert.Equal(t, "fetching daily weather", line["message"])
	assert.Equal(t, "info", line["level"])
	assert.EqualValues(t, 2, line["attempt"])
	assert.Contains(t, line, "timestamp")
}

func TestLevelParsing(t *testing.T) {
	assert.Equal(t, logrus.WarnLevel, NewWithWriter(Options{Level: "WARN"}, &bytes.Buffer{}).GetLevel())
	assert.Equal(t, logrus.InfoLevel, NewWithWriter(Options{Level: "bogus"}, &bytes.Buffer{}).GetLevel())
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Options{Format: "text"}, &buf)
	logger.Info("hello")
	assert.Contains(t, buf.String(), "msg=hello")
}
