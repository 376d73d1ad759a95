package template

import (
	"context"
	"testing"

	"github.com/shpitdev/email-finder/pkg/pipeline/core"
	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
	"github.com/shpitdev/email-finder/pkg/pipeline/worker"
	"github.com/shpitdev/email-finder/test/template/processor"
)

func TestTemplateCompilesWithPipelineKit(t *testing.T) {
	t.Parallel()

	p := processor.Processor{}
	runner := core.ProcessFunc[schema.Entry, processor.Result](p.Process)

	var seen []string
	out, err := worker.Run(context.Background(), []schema.Entry{{FullName: "Bob  Stone", Domain: "Corp.Test "}}, runner,
		func(res worker.Result[schema.Entry, processor.Result]) error {
			seen = append(seen, res.Output.Key.String())
			return nil
		}, worker.Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(out) != 1 || out[0].Output.Domain != "corp.test" {
		t.Fatalf("unexpected output: %#v", out)
	}
	if len(seen) != 1 || seen[0] != "corp.test/bob stone" {
		t.Fatalf("unexpected callback keys: %v", seen)
	}
}
