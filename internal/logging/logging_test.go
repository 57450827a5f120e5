package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/m-mizutani/gt"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "json")
	gt.NoError(t, err)

	logger.Debug("segmented", "trials", 3)
	gt.S(t, buf.String()).Contains(`"trials":3`)
}

func TestNewLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "text")
	gt.NoError(t, err)

	logger.Info("hidden")
	gt.Equal(t, buf.Len(), 0)
	logger.Warn("shown")
	gt.S(t, buf.String()).Contains("shown")
}

func TestNewRejectsUnknown(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "text")
	gt.Error(t, err)
	_, err = New(&bytes.Buffer{}, "info", "xml")
	gt.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "text")
	gt.NoError(t, err)

	ctx := With(context.Background(), logger)
	From(ctx).Info("from context")
	gt.S(t, buf.String()).Contains("from context")
}
