package processor

import (
	"context"

	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
)

type Result struct {
	Key    schema.Key
	Domain string
}

// Processor normalizes an entry into its progress key.
type Processor struct{}

func (Processor) Process(_ context.Context, in schema.Entry) (Result, error) {
	k := in.Key()
	return Result{Key: k, Domain: k.Domain}, nil
}
