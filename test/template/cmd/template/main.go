package main

import (
	"context"
	"fmt"

	"github.com/shpitdev/email-finder/pkg/pipeline/core"
	"github.com/shpitdev/email-finder/pkg/pipeline/schema"
	"github.com/shpitdev/email-finder/pkg/pipeline/worker"
	"github.com/shpitdev/email-finder/test/template/processor"
)

func main() {
	p := processor.Processor{}
	runner := core.ProcessFunc[schema.Entry, processor.Result](p.Process)

	out, err := worker.Run[schema.Entry, processor.Result](context.Background(), []schema.Entry{{FullName: "Alice  Smith", Domain: "Example.com"}}, runner, nil, worker.Options{})
	if err != nil {
		panic(err)
	}
	fmt.Println(out[0].Output.Key)
}
