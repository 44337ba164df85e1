package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/vmcore/sim/hooking"
)

// CollectTrace attaches a tracer to a domain, such as the fault resolver. From
// then on, every fault, page-in and page-out the domain reports reaches the
// tracer. Attaching the same tracer twice panics.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, existing := range domain.Hooks() {
		if h, ok := existing.(*traceHook); ok && h.t == tracer {
			panic(fmt.Sprintf("%s is already traced by %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	domain.AcceptHook(&traceHook{t: tracer})
}

// traceHook forwards task hook positions to a tracer. Other positions, such as
// the page-in and page-out notifications of the resolver, are ignored.
type traceHook struct {
	t Tracer
}

func (h *traceHook) Func(ctx hooking.HookCtx) {
	task, ok := ctx.Item.(Task)
	if !ok {
		return
	}

	switch ctx.Pos {
	case HookPosTaskStart:
		h.t.StartTask(task)
	case HookPosTaskStep:
		h.t.StepTask(task)
	case HookPosTaskEnd:
		h.t.EndTask(task)
	}
}
