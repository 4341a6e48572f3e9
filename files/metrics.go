package files

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var (
	meter  = otel.Meter("github.com/imrenagi/go-pastefile/files")
	tracer = otel.Tracer("github.com/imrenagi/go-pastefile/files")
)

type instruments struct {
	uploads      metric.Int64Counter
	dedups       metric.Int64Counter
	burns        metric.Int64Counter
	deletes      metric.Int64Counter
	swept        metric.Int64Counter
	purged       metric.Int64Counter
	lockFailures metric.Int64Counter
}

func newInstruments() instruments {
	return instruments{
		uploads:      counter("pastefile.uploads", "Files stored"),
		dedups:       counter("pastefile.dedup", "Uploads matching an already stored file"),
		burns:        counter("pastefile.burns", "Burn after read files delivered"),
		deletes:      counter("pastefile.deletes", "Files deleted on request"),
		swept:        counter("pastefile.swept", "Files removed by the expiry sweep"),
		purged:       counter("pastefile.purged", "Records dropped because their blob was gone"),
		lockFailures: counter("pastefile.lock_failures", "Write sessions that did not get the metadata lock"),
	}
}

func counter(name, description string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(description))
	if err != nil {
		log.Error().Err(err).Str("instrument", name).Msg("failed to create counter")
		return noop.Int64Counter{}
	}
	return c
}

func add(ctx context.Context, c metric.Int64Counter, n int) {
	if n > 0 {
		c.Add(ctx, int64(n))
	}
}
